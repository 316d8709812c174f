package heremaps

import (
	"strconv"

	"go.uber.org/zap"
)

// Result files inside the downloaded archive end with this suffix; anything
// else in the archive (request echoes, reports) is ignored.
const bulkResultsSuffix = "_out.txt"

// Sentinel matchLevel values in bulk output rows.
const (
	matchLevelNoMatch = "NOMATCH"
	matchLevelFailed  = "FAILED"
)

// errBulkFailed is the error marker for rows the provider flagged FAILED.
const errBulkFailed = "bulk geocoder failed"

// Output columns requested from the batch endpoint, in addition to the
// echoed recId and SeqNumber.
var bulkOutputCols = []string{
	"displayLatitude",
	"displayLongitude",
	"relevance",
	"matchType",
	"matchCode",
	"matchLevel",
	"matchQualityStreet",
}

// precisionByMatchType maps the provider's matchType to a precision level.
// Unknown or absent matchType falls back to interpolated.
var precisionByMatchType = map[string]Precision{
	"pointAddress": PrecisionPrecise,
	"interpolated": PrecisionInterpolated,
}

// matchTypeByMatchLevel maps the provider's matchLevel to a canonical match
// type tag. Levels without a mapping yield an empty match-type list.
var matchTypeByMatchLevel = map[string]string{
	"landmark":     "point_of_interest",
	"street":       "street",
	"intersection": "intersection",
	"houseNumber":  "street_number",
	"postalCode":   "postal_code",
	"district":     "locality",
	"city":         "locality",
	"county":       "locality",
	"state":        "state",
	"country":      "country",
}

// decodeBulkRow turns one output row into a GeocodeResult. The second return
// is false for rows that produce nothing: secondary candidates
// (SeqNumber != "1") and rows outside the documented output states, which are
// skipped rather than allowed to abort the batch.
func decodeBulkRow(row map[string]string) (*GeocodeResult, bool) {
	switch {
	case row["SeqNumber"] == "1": // top candidate per requested record
		precision, ok := precisionByMatchType[row["matchType"]]
		if !ok {
			precision = PrecisionInterpolated
		}

		var matchTypes []string
		if tag, ok := matchTypeByMatchLevel[row["matchLevel"]]; ok {
			matchTypes = []string{tag}
		}

		lon, lonErr := strconv.ParseFloat(row["displayLongitude"], 64)
		lat, latErr := strconv.ParseFloat(row["displayLatitude"], 64)
		if lonErr != nil || latErr != nil {
			zap.L().Debug("bulk geocoder: skipping row with unparseable coordinates",
				zap.String("rec_id", row["recId"]),
				zap.String("longitude", row["displayLongitude"]),
				zap.String("latitude", row["displayLatitude"]),
			)
			return nil, false
		}

		relevance, err := strconv.ParseFloat(row["relevance"], 64)
		if err != nil {
			relevance = 0
		}

		return &GeocodeResult{
			ID:         row["recId"],
			Coordinate: &Coordinate{Longitude: lon, Latitude: lat},
			Metadata: Metadata{
				Relevance:  relevance,
				Precision:  precision,
				MatchTypes: matchTypes,
			},
		}, true

	case row["matchLevel"] == matchLevelNoMatch:
		// Explicit no-match: a result with absent coordinates, not an error.
		return &GeocodeResult{ID: row["recId"]}, true

	case row["matchLevel"] == matchLevelFailed:
		return &GeocodeResult{ID: row["recId"], Error: errBulkFailed}, true

	default:
		// Secondary candidate or undocumented state: dropped.
		return nil, false
	}
}

// zipRow pairs a header with one row's fields. Rows shorter than the header
// leave trailing columns empty; extra fields are ignored.
func zipRow(header, fields []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(fields) {
			row[col] = fields[i]
		} else {
			row[col] = ""
		}
	}
	return row
}
