// Package polyline implements Google's encoded polyline algorithm: signed
// coordinate deltas, zig-zag encoded, packed into 5-bit chunks offset by 63.
// Absolute positions are reconstructed by cumulative summation of the deltas.
package polyline

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Precision factors. The classic Google Maps encoding uses five decimal
// digits; Valhalla trip shapes use six.
const (
	Precision5 = 1e5
	Precision6 = 1e6
)

// Coordinate is a geographic point. Longitude first, matching the rest of
// the repo's (lon, lat) convention.
type Coordinate struct {
	Longitude float64
	Latitude  float64
}

// Decode decodes an encoded polyline into an ordered coordinate sequence.
// precision is the fixed-point factor the polyline was encoded with
// (Precision5 or Precision6).
func Decode(encoded string, precision float64) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	var coords []Coordinate
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lat += latDelta

		lonDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lon += lonDelta

		coords = append(coords, Coordinate{
			Longitude: float64(lon) / precision,
			Latitude:  float64(lat) / precision,
		})
	}

	return coords, nil
}

// decodeValue decodes a single zig-zag encoded delta starting at index.
// Returns the delta and the index of the next chunk.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0
	for {
		if index >= len(encoded) {
			return 0, 0, eris.New("polyline: truncated input")
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes a coordinate sequence as a polyline at the given precision.
func Encode(coords []Coordinate, precision float64) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*4)
	prevLat, prevLon := 0, 0

	for _, c := range coords {
		lat := int(math.Round(c.Latitude * precision))
		lon := int(math.Round(c.Longitude * precision))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// LineString converts a decoded coordinate sequence to a geom.LineString in
// EPSG:4326. Returns nil for sequences shorter than two points.
func LineString(coords []Coordinate) *geom.LineString {
	if len(coords) < 2 {
		return nil
	}

	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c.Longitude, c.Latitude)
	}
	return geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326)
}
