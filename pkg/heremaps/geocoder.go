package heremaps

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// geocodeResponse is the JSON envelope of the forward geocoding endpoint.
// Only the fields the codec reads are declared.
type geocodeResponse struct {
	Response struct {
		View []struct {
			Result []struct {
				Relevance float64 `json:"Relevance"`
				MatchLevel string `json:"MatchLevel"`
				MatchType  string `json:"MatchType"`
				Location   struct {
					DisplayPosition struct {
						Latitude  float64 `json:"Latitude"`
						Longitude float64 `json:"Longitude"`
					} `json:"DisplayPosition"`
				} `json:"Location"`
			} `json:"Result"`
		} `json:"View"`
	} `json:"Response"`
}

// GeocodeOne geocodes a single address. A provider response with no candidate
// views is a valid no-match, returned with a nil Coordinate; only transport
// and decode failures surface as errors. Results, including no-matches, are
// cached when a cache is configured.
func (c *Client) GeocodeOne(ctx context.Context, req SearchRequest) (*GeocodeResult, error) {
	if c.cache != nil {
		if cached, err := c.cache.check(ctx, req); err == nil {
			return cached, nil
		}
	}

	params := url.Values{}
	setNonEmpty := func(key, val string) {
		if val != "" {
			params.Set(key, val)
		}
	}
	setNonEmpty("searchtext", req.Address)
	setNonEmpty("city", req.City)
	setNonEmpty("state", req.State)
	setNonEmpty("country", req.Country)

	body, err := c.getWithRetry(ctx, c.geocodeBaseURL, params, "geocode")
	if err != nil {
		return nil, err
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "heremaps: parse geocode response")
	}

	result := decodeSingleResult(req.ID, &parsed)

	if c.cache != nil {
		if err := c.cache.store(ctx, req, result); err != nil {
			zap.L().Warn("geocode cache store failed",
				zap.String("rec_id", req.ID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// decodeSingleResult maps the top candidate of a forward geocoding response
// to a GeocodeResult, using the same precision and match-type tables as the
// bulk codec.
func decodeSingleResult(id string, resp *geocodeResponse) *GeocodeResult {
	views := resp.Response.View
	if len(views) == 0 || len(views[0].Result) == 0 {
		return &GeocodeResult{ID: id}
	}

	top := views[0].Result[0]

	precision, ok := precisionByMatchType[top.MatchType]
	if !ok {
		precision = PrecisionInterpolated
	}

	var matchTypes []string
	if tag, ok := matchTypeByMatchLevel[top.MatchLevel]; ok {
		matchTypes = []string{tag}
	}

	return &GeocodeResult{
		ID: id,
		Coordinate: &Coordinate{
			Longitude: top.Location.DisplayPosition.Longitude,
			Latitude:  top.Location.DisplayPosition.Latitude,
		},
		Metadata: Metadata{
			Relevance:  top.Relevance,
			Precision:  precision,
			MatchTypes: matchTypes,
		},
	}
}
