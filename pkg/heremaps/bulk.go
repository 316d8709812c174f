package heremaps

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlasworks/geoservices/internal/fetcher"
	"github.com/atlasworks/geoservices/internal/resilience"
)

// batchSubmitResponse is the XML envelope returned by a successful batch
// submission.
type batchSubmitResponse struct {
	RequestID string `xml:"Response>MetaInfo>RequestId"`
}

// batchStatusResponse is the XML envelope returned by a job status query.
type batchStatusResponse struct {
	TotalCount     int    `xml:"Response>TotalCount"`
	ProcessedCount int    `xml:"Response>ProcessedCount"`
	Status         string `xml:"Response>Status"`
}

// Geocode geocodes the requests, choosing the batch job protocol for large
// sets and one request per item otherwise. Every request yields exactly one
// result, correlated by ID; no duplicates, no drops on the serial path, and
// per-item failures there never abort the remaining items. Batch-path
// failures (submission errors, stalled jobs) abort the whole call.
func (c *Client) Geocode(ctx context.Context, reqs []SearchRequest) ([]GeocodeResult, error) {
	if err := validateBatch(reqs); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	if !c.shouldUseBatch(reqs) {
		return c.serialGeocode(ctx, reqs)
	}
	return c.batchGeocode(ctx, reqs)
}

// shouldUseBatch decides the execution path. Small sets pay more in batch
// protocol latency than they save, so they run serially.
func (c *Client) shouldUseBatch(reqs []SearchRequest) bool {
	return len(reqs) >= c.minBatchedSearch
}

func (c *Client) batchGeocode(ctx context.Context, reqs []SearchRequest) ([]GeocodeResult, error) {
	payload, err := encodeBatch(reqs)
	if err != nil {
		return nil, err
	}

	jobID, err := c.submitBatch(ctx, payload)
	if err != nil {
		return nil, err
	}

	zap.L().Info("bulk geocoder: batch submitted",
		zap.String("job_id", jobID),
		zap.Int("request_count", len(reqs)),
	)

	if err := c.pollJob(ctx, jobID); err != nil {
		return nil, err
	}

	return c.downloadResults(ctx, jobID)
}

// submitBatch uploads the payload and returns the provider-assigned job id.
// A non-success response is fatal here; only connection-level failures are
// retried, per the transport's own policy for non-idempotent calls.
func (c *Client) submitBatch(ctx context.Context, payload string) (string, error) {
	params := c.creds.Params()
	params.Set("gen", "8")
	params.Set("action", "run")
	params.Set("header", "true")
	params.Set("indelim", string(batchDelimiter))
	params.Set("outdelim", string(batchDelimiter))
	params.Set("outcols", strings.Join(bulkOutputCols, ","))
	params.Set("outputcombined", "true")

	reqURL := c.batchBaseURL + "?" + params.Encode()

	cfg := c.retry
	cfg.ShouldRetry = resilience.IsTransient
	cfg.OnRetry = resilience.RetryLogger("heremaps", "batch submit")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "heremaps: batch submit rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "heremaps: batch submit build request")
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "heremaps: batch submit request")
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "heremaps: batch submit read body")
		}

		if resp.StatusCode != http.StatusOK {
			// Not retried at this layer: submission is not idempotent.
			return nil, &ServiceError{Op: "batch submit", StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		return respBody, nil
	})
	if err != nil {
		return "", err
	}

	var parsed batchSubmitResponse
	if err := fetcher.DecodeXML(strings.NewReader(string(body)), &parsed); err != nil {
		return "", eris.Wrap(err, "heremaps: batch submit parse response")
	}
	if parsed.RequestID == "" {
		return "", &MalformedResultError{Op: "batch submit"}
	}

	return parsed.RequestID, nil
}

// pollJob queries job status until a terminal state. A poll that reports no
// processed-count progress counts as a stall; once stalls exceed the ceiling
// the job is abandoned, bounding total wait time on a hung provider job. The
// stall ceiling is checked before the terminal state, so a job that stalls
// its way to completion still fails.
func (c *Client) pollJob(ctx context.Context, jobID string) error {
	lastProcessed := 0
	stalled := 0
	first := true

	for {
		// No status query before the interval has elapsed since the
		// previous one, except the first.
		if !first {
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return eris.Wrapf(err, "heremaps: polling job %s", jobID)
			}
		}
		first = false

		status, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return err
		}

		if status.ProcessedCount == lastProcessed {
			stalled++
			if stalled > c.maxStalledRetries {
				return &StalledJobError{JobID: jobID, Polls: stalled}
			}
		} else {
			stalled = 0
			lastProcessed = status.ProcessedCount
		}

		if status.Status.Terminal() {
			zap.L().Info("bulk geocoder: job reached terminal state",
				zap.String("job_id", jobID),
				zap.String("status", string(status.Status)),
				zap.Int("processed", status.ProcessedCount),
				zap.Int("total", status.TotalCount),
			)
			return nil
		}
	}
}

// jobStatus fetches one status observation for the job.
func (c *Client) jobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	body, err := c.getWithRetry(ctx, c.batchBaseURL+"/"+jobID, url.Values{"action": {"status"}}, "job status")
	if err != nil {
		return nil, err
	}

	var parsed batchStatusResponse
	if err := fetcher.DecodeXML(strings.NewReader(string(body)), &parsed); err != nil {
		return nil, eris.Wrapf(err, "heremaps: parse status for job %s", jobID)
	}
	if parsed.Status == "" {
		return nil, &MalformedResultError{Op: "job status"}
	}

	return &JobStatus{
		TotalCount:     parsed.TotalCount,
		ProcessedCount: parsed.ProcessedCount,
		Status:         JobState(parsed.Status),
	}, nil
}

// downloadResults retrieves the job's result archive and decodes every
// results file in it. Per-file row order is preserved; ordering across files
// is not guaranteed. Malformed files or rows are skipped, never fatal: a
// failed or cancelled job may legitimately yield an incomplete archive.
func (c *Client) downloadResults(ctx context.Context, jobID string) ([]GeocodeResult, error) {
	body, err := c.getWithRetry(ctx, c.batchBaseURL+"/"+jobID+"/all", nil, "batch download")
	if err != nil {
		return nil, err
	}

	archive, err := fetcher.OpenArchive(body)
	if err != nil {
		return nil, eris.Wrapf(err, "heremaps: open result archive for job %s", jobID)
	}

	var results []GeocodeResult
	for _, entry := range fetcher.EntriesWithSuffix(archive, bulkResultsSuffix) {
		decoded, err := c.decodeResultsFile(ctx, entry.Name, entry)
		if err != nil {
			zap.L().Warn("bulk geocoder: skipping unreadable results file",
				zap.String("job_id", jobID),
				zap.String("entry", entry.Name),
				zap.Error(err),
			)
			continue
		}
		results = append(results, decoded...)
	}

	return results, nil
}

// opener is the subset of zip.File needed to read one archive entry.
type opener interface {
	Open() (io.ReadCloser, error)
}

// decodeResultsFile streams one delimited results file through the codec.
func (c *Client) decodeResultsFile(ctx context.Context, name string, entry opener) ([]GeocodeResult, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "heremaps: open archive entry %s", name)
	}
	defer rc.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, rc, fetcher.CSVOptions{
		Delimiter: batchDelimiter,
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	var results []GeocodeResult
	var header []string
	for fields := range rowCh {
		if header == nil {
			header = <-headerCh
		}
		result, ok := decodeBulkRow(zipRow(header, fields))
		if !ok {
			continue
		}
		results = append(results, *result)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	return results, nil
}

// serialGeocode issues one geocode request per item. Failures are isolated:
// a failing item is logged and replaced with an error-tagged result, and the
// remaining items still run. Output order follows input order when
// serialConcurrency is 1; only the id-to-result mapping is contractual.
func (c *Client) serialGeocode(ctx context.Context, reqs []SearchRequest) ([]GeocodeResult, error) {
	results := make([]GeocodeResult, len(reqs))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.serialConcurrency)

	for i, req := range reqs {
		eg.Go(func() error {
			result, err := c.GeocodeOne(gCtx, req)
			if err != nil {
				zap.L().Error("serial geocode: item failed",
					zap.String("rec_id", req.ID),
					zap.Error(err),
				)
				results[i] = GeocodeResult{ID: req.ID, Error: "error geocoding"}
				return nil //nolint:nilerr // item failures don't abort the batch
			}
			results[i] = *result
			return nil
		})
	}

	_ = eg.Wait()
	return results, nil
}
