package heremaps

import (
	"encoding/csv"
	"strings"

	"github.com/rotisserie/eris"
)

// batchDelimiter separates fields in both the uploaded payload and the
// downloaded result files.
const batchDelimiter = '|'

// payloadHeader is the fixed three-column header of a batch payload. Every
// row carries exactly these columns; absent optional values are emitted as
// empty fields.
var payloadHeader = []string{"recId", "searchText", "country"}

// validateBatch rejects request sets that would break result correlation.
// Called before any network activity.
func validateBatch(reqs []SearchRequest) error {
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		if _, dup := seen[r.ID]; dup {
			return &ContractViolationError{Reason: "duplicate record id " + r.ID}
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// encodeBatch serializes requests into the pipe-delimited document the batch
// endpoint expects. The csv writer quotes any field containing the delimiter,
// so free-text addresses cannot smuggle extra columns.
func encodeBatch(reqs []SearchRequest) (string, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	w.Comma = batchDelimiter

	if err := w.Write(payloadHeader); err != nil {
		return "", eris.Wrap(err, "heremaps: encode payload header")
	}
	for _, r := range reqs {
		if err := w.Write([]string{r.ID, composeSearchText(r), r.Country}); err != nil {
			return "", eris.Wrapf(err, "heremaps: encode payload row %s", r.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "heremaps: flush payload")
	}

	return buf.String(), nil
}

// composeSearchText joins the non-empty address parts in priority order.
// Empty fields are skipped without producing stray separators.
func composeSearchText(r SearchRequest) string {
	parts := []string{r.Address, r.City, r.State}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
