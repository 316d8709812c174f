package heremaps

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atlasworks/geoservices/internal/db"
)

// resultCache is a Postgres-backed cache for single-address geocode results,
// keyed by a hash of the normalized address fields. Non-matches are cached
// too, so repeated lookups of unknown addresses skip the provider entirely.
type resultCache struct {
	pool    db.Pool
	table   string
	ttlDays int
}

func newResultCache(pool db.Pool, table string, ttlDays int) *resultCache {
	if table == "" {
		table = "public.geocode_cache"
	}
	return &resultCache{pool: pool, table: table, ttlDays: ttlDays}
}

// cacheKey returns SHA-256 hex of the normalized request fields.
func cacheKey(req SearchRequest) string {
	normalized := fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(strings.TrimSpace(req.Address)),
		strings.ToLower(strings.TrimSpace(req.City)),
		strings.ToLower(strings.TrimSpace(req.State)),
		strings.ToLower(strings.TrimSpace(req.Country)),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// check looks up a cached result, respecting TTL if configured. The returned
// result carries the request's ID, not whatever ID was stored. Any error,
// including pgx.ErrNoRows, means miss to the caller.
func (rc *resultCache) check(ctx context.Context, req SearchRequest) (*GeocodeResult, error) {
	var lon, lat float64
	var matched bool
	var relevance float64
	var precision string
	var matchTypes *string

	query := fmt.Sprintf(
		"SELECT longitude, latitude, matched, relevance, precision, match_types FROM %s WHERE address_hash = $1",
		rc.table,
	)
	if rc.ttlDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", rc.ttlDays)
	}

	row := rc.pool.QueryRow(ctx, query, cacheKey(req))
	if err := row.Scan(&lon, &lat, &matched, &relevance, &precision, &matchTypes); err != nil {
		return nil, err // no row or scan error, caller treats as miss
	}

	result := &GeocodeResult{ID: req.ID}
	if matched {
		result.Coordinate = &Coordinate{Longitude: lon, Latitude: lat}
		result.Metadata = Metadata{
			Relevance: relevance,
			Precision: Precision(precision),
		}
		if matchTypes != nil && *matchTypes != "" {
			result.Metadata.MatchTypes = strings.Split(*matchTypes, ",")
		}
	}

	zap.L().Debug("geocode cache hit",
		zap.String("rec_id", req.ID),
		zap.Bool("matched", matched),
	)
	return result, nil
}

// store upserts one result. Non-matches store with matched=false and zeroed
// coordinates.
func (rc *resultCache) store(ctx context.Context, req SearchRequest, result *GeocodeResult) error {
	var lon, lat float64
	matched := result.Coordinate != nil
	if matched {
		lon = result.Coordinate.Longitude
		lat = result.Coordinate.Latitude
	}

	var matchTypes any
	if len(result.Metadata.MatchTypes) > 0 {
		matchTypes = strings.Join(result.Metadata.MatchTypes, ",")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (address_hash, longitude, latitude, matched, relevance, precision, match_types, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			matched = EXCLUDED.matched,
			relevance = EXCLUDED.relevance,
			precision = EXCLUDED.precision,
			match_types = EXCLUDED.match_types,
			cached_at = now()`, rc.table)

	_, err := rc.pool.Exec(ctx, query,
		cacheKey(req), lon, lat, matched, result.Metadata.Relevance, string(result.Metadata.Precision), matchTypes,
	)
	if err != nil {
		return eris.Wrap(err, "heremaps: store cache")
	}
	return nil
}
