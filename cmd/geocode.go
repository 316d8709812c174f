package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasworks/geoservices/internal/config"
	"github.com/atlasworks/geoservices/internal/db"
	"github.com/atlasworks/geoservices/pkg/heremaps"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode addresses from a CSV file",
	Long: `Reads addresses from a CSV with columns id,address,city,state,country and
writes one result row per input row. Large inputs go through the provider's
asynchronous batch job protocol; small ones are geocoded one by one.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")

		reqs, err := readSearchRequests(input)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Println("No addresses to geocode")
			return nil
		}

		client, cleanup, err := buildGeocodeClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		log := zap.L().With(zap.String("command", "geocode"))
		log.Info("geocoding", zap.Int("addresses", len(reqs)))

		start := time.Now()
		results, err := client.Geocode(ctx, reqs)
		if err != nil {
			return eris.Wrap(err, "geocode")
		}

		if err := writeResults(output, results); err != nil {
			return err
		}

		matched := 0
		for _, r := range results {
			if r.Coordinate != nil {
				matched++
			}
		}
		log.Info("geocoding finished",
			zap.Int("results", len(results)),
			zap.Int("matched", matched),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	geocodeCmd.Flags().String("input", "", "input CSV file (id,address,city,state,country)")
	geocodeCmd.Flags().String("output", "", "output CSV file (default stdout)")
	_ = geocodeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(geocodeCmd)
}

// buildGeocodeClient assembles the geocoding client from configuration. The
// returned cleanup closes the cache pool when one was opened.
func buildGeocodeClient(ctx context.Context, cfg *config.Config) (*heremaps.Client, func(), error) {
	creds, err := credentialsFromConfig(cfg.Geocoder)
	if err != nil {
		return nil, nil, err
	}

	opts := []heremaps.Option{
		heremaps.WithBaseURLs(cfg.Geocoder.BatchBaseURL, cfg.Geocoder.GeocodeBaseURL),
		heremaps.WithMinBatchedSearch(cfg.Geocoder.MinBatchedSearch),
		heremaps.WithMaxStalledRetries(cfg.Geocoder.MaxStalledRetries),
		heremaps.WithPollInterval(time.Duration(cfg.Geocoder.PollIntervalSecs) * time.Second),
		heremaps.WithTimeouts(
			time.Duration(cfg.Geocoder.ConnectTimeoutSec)*time.Second,
			time.Duration(cfg.Geocoder.ReadTimeoutSecs)*time.Second,
		),
		heremaps.WithRateLimit(cfg.Geocoder.RateLimitRPS),
		heremaps.WithSerialConcurrency(cfg.Geocoder.SerialConcurrency),
	}

	cleanup := func() {}
	if cfg.Cache.Enabled && cfg.Cache.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.Cache.DatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "geocode: connect cache database")
		}
		cleanup = pool.Close
		opts = append(opts, heremaps.WithCache(pool, cfg.Cache.Table, cfg.Cache.TTLDays))
	}

	return heremaps.NewClient(creds, opts...), cleanup, nil
}

// credentialsFromConfig picks the credential scheme. The single api_key wins
// when both schemes are configured.
func credentialsFromConfig(gc config.GeocoderConfig) (heremaps.Credentials, error) {
	switch {
	case gc.APIKey != "":
		return heremaps.APIKeyCredentials{Key: gc.APIKey}, nil
	case gc.AppID != "" && gc.AppCode != "":
		return heremaps.AppCodeCredentials{AppID: gc.AppID, AppCode: gc.AppCode}, nil
	default:
		return nil, eris.New("geocode: no credentials configured (set geocoder.api_key or geocoder.app_id/app_code)")
	}
}

// readSearchRequests loads the input CSV. The header row is required; rows
// missing an id get one assigned from their position.
func readSearchRequests(path string) ([]heremaps.SearchRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: open input %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read input header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var reqs []heremaps.SearchRequest
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: read input row %d", line)
		}

		req := heremaps.SearchRequest{
			ID:      field(row, "id"),
			Address: field(row, "address"),
			City:    field(row, "city"),
			State:   field(row, "state"),
			Country: field(row, "country"),
		}
		if req.ID == "" {
			req.ID = strconv.Itoa(line)
		}
		reqs = append(reqs, req)
	}

	return reqs, nil
}

// writeResults emits one CSV row per result, to the given path or stdout.
func writeResults(path string, results []heremaps.GeocodeResult) error {
	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "geocode: create output %s", path)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{"id", "longitude", "latitude", "relevance", "precision", "match_types", "error"}); err != nil {
		return eris.Wrap(err, "geocode: write output header")
	}

	for _, r := range results {
		var lon, lat string
		if r.Coordinate != nil {
			lon = strconv.FormatFloat(r.Coordinate.Longitude, 'f', -1, 64)
			lat = strconv.FormatFloat(r.Coordinate.Latitude, 'f', -1, 64)
		}
		var relevance string
		if r.Coordinate != nil {
			relevance = strconv.FormatFloat(r.Metadata.Relevance, 'f', -1, 64)
		}
		row := []string{
			r.ID,
			lon,
			lat,
			relevance,
			string(r.Metadata.Precision),
			strings.Join(r.Metadata.MatchTypes, ";"),
			r.Error,
		}
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "geocode: write output row %s", r.ID)
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "geocode: flush output")
}
