package heremaps

import "fmt"

// ContractViolationError reports a caller error detected before any network
// activity, such as duplicate record ids within one batch. Never retried.
type ContractViolationError struct {
	Reason string
}

func (e *ContractViolationError) Error() string {
	return "heremaps: contract violation: " + e.Reason
}

// ServiceError reports a non-success response from the geocoding service.
// Body carries the raw response for diagnostics.
type ServiceError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("heremaps: %s returned status %d", e.Op, e.StatusCode)
}

// StalledJobError reports a batch job whose processed count stopped advancing
// for more polls than the configured ceiling allows.
type StalledJobError struct {
	JobID string
	Polls int
}

func (e *StalledJobError) Error() string {
	return fmt.Sprintf("heremaps: too many stalled retries for job %s (%d polls without progress)", e.JobID, e.Polls)
}

// MalformedResultError reports a response that is structurally missing
// expected fields. Distinct from a valid empty outcome.
type MalformedResultError struct {
	Op string
}

func (e *MalformedResultError) Error() string {
	return "heremaps: malformed result from " + e.Op
}
