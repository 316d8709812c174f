package heremaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBulkRow_TopCandidate(t *testing.T) {
	result, ok := decodeBulkRow(map[string]string{
		"recId":            "42",
		"SeqNumber":        "1",
		"displayLatitude":  "25.7743",
		"displayLongitude": "-80.1937",
		"relevance":        "0.92",
		"matchType":        "pointAddress",
		"matchLevel":       "houseNumber",
	})

	require.True(t, ok)
	assert.Equal(t, "42", result.ID)
	require.NotNil(t, result.Coordinate)
	assert.InDelta(t, -80.1937, result.Coordinate.Longitude, 0.0001)
	assert.InDelta(t, 25.7743, result.Coordinate.Latitude, 0.0001)
	assert.InDelta(t, 0.92, result.Metadata.Relevance, 0.0001)
	assert.Equal(t, PrecisionPrecise, result.Metadata.Precision)
	assert.Equal(t, []string{"street_number"}, result.Metadata.MatchTypes)
	assert.Empty(t, result.Error)
}

func TestDecodeBulkRow_UnknownMatchTypeFallsBack(t *testing.T) {
	result, ok := decodeBulkRow(map[string]string{
		"recId":            "7",
		"SeqNumber":        "1",
		"displayLatitude":  "48.8566",
		"displayLongitude": "2.3522",
		"relevance":        "0.8",
		"matchType":        "somethingNew",
		"matchLevel":       "city",
	})

	require.True(t, ok)
	assert.Equal(t, PrecisionInterpolated, result.Metadata.Precision)
	assert.Equal(t, []string{"locality"}, result.Metadata.MatchTypes)
}

func TestDecodeBulkRow_UnmappedMatchLevel(t *testing.T) {
	result, ok := decodeBulkRow(map[string]string{
		"recId":            "7",
		"SeqNumber":        "1",
		"displayLatitude":  "48.8566",
		"displayLongitude": "2.3522",
		"matchLevel":       "someFutureLevel",
	})

	require.True(t, ok)
	assert.Nil(t, result.Metadata.MatchTypes)
}

func TestDecodeBulkRow_NoMatch(t *testing.T) {
	// NOMATCH wins even when stale coordinate columns are present.
	result, ok := decodeBulkRow(map[string]string{
		"recId":            "9",
		"SeqNumber":        "",
		"displayLatitude":  "1.0",
		"displayLongitude": "1.0",
		"matchLevel":       "NOMATCH",
	})

	require.True(t, ok)
	assert.Equal(t, "9", result.ID)
	assert.Nil(t, result.Coordinate)
	assert.Empty(t, result.Error)
}

func TestDecodeBulkRow_Failed(t *testing.T) {
	result, ok := decodeBulkRow(map[string]string{
		"recId":      "13",
		"matchLevel": "FAILED",
	})

	require.True(t, ok)
	assert.Equal(t, "13", result.ID)
	assert.Nil(t, result.Coordinate)
	assert.Equal(t, "bulk geocoder failed", result.Error)
}

func TestDecodeBulkRow_SecondaryCandidateSkipped(t *testing.T) {
	_, ok := decodeBulkRow(map[string]string{
		"recId":            "42",
		"SeqNumber":        "2",
		"displayLatitude":  "25.0",
		"displayLongitude": "-80.0",
		"matchLevel":       "houseNumber",
	})

	assert.False(t, ok)
}

func TestDecodeBulkRow_UnparseableCoordinatesSkipped(t *testing.T) {
	_, ok := decodeBulkRow(map[string]string{
		"recId":            "42",
		"SeqNumber":        "1",
		"displayLatitude":  "not-a-number",
		"displayLongitude": "-80.0",
		"matchLevel":       "houseNumber",
	})

	assert.False(t, ok)
}

func TestDecodeBulkRow_BadRelevanceDefaultsToZero(t *testing.T) {
	result, ok := decodeBulkRow(map[string]string{
		"recId":            "42",
		"SeqNumber":        "1",
		"displayLatitude":  "25.0",
		"displayLongitude": "-80.0",
		"relevance":        "",
		"matchLevel":       "street",
	})

	require.True(t, ok)
	assert.Zero(t, result.Metadata.Relevance)
}

func TestZipRow(t *testing.T) {
	header := []string{"recId", "SeqNumber", "matchLevel"}

	row := zipRow(header, []string{"1", "1", "city"})
	assert.Equal(t, map[string]string{"recId": "1", "SeqNumber": "1", "matchLevel": "city"}, row)

	// Short rows pad with empty strings.
	row = zipRow(header, []string{"2"})
	assert.Equal(t, map[string]string{"recId": "2", "SeqNumber": "", "matchLevel": ""}, row)

	// Extra fields beyond the header are dropped.
	row = zipRow(header, []string{"3", "1", "city", "extra"})
	assert.Len(t, row, 3)
}
