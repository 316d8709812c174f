package heremaps

// SearchRequest is one address to geocode within a batch. ID is assigned by
// the caller and must be unique within the batch; it correlates the request
// with its result. Optional fields may be empty.
type SearchRequest struct {
	ID      string
	Address string
	City    string
	State   string
	Country string
}

// Coordinate is a geographic point, longitude first.
type Coordinate struct {
	Longitude float64
	Latitude  float64
}

// Precision is the qualitative confidence level of a geocode result.
type Precision string

// Precision levels reported by the provider's match quality.
const (
	PrecisionPrecise      Precision = "precise"
	PrecisionInterpolated Precision = "interpolated"
)

// Metadata describes the match quality of a geocode result.
type Metadata struct {
	Relevance  float64
	Precision  Precision
	MatchTypes []string
}

// GeocodeResult is the uniform outcome for one SearchRequest. Coordinate is
// nil when the provider found no match; Error carries the error marker for
// item- or job-level failures. Exactly one result is produced per request.
type GeocodeResult struct {
	ID         string
	Coordinate *Coordinate
	Metadata   Metadata
	Error      string
}

// JobState is a batch job lifecycle state as reported by the provider.
type JobState string

// Terminal job states. Anything else the provider reports is treated as
// still running.
const (
	JobCompleted JobState = "completed"
	JobCancelled JobState = "cancelled"
	JobDeleted   JobState = "deleted"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transitions can occur from s.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobCancelled, JobDeleted, JobFailed:
		return true
	}
	return false
}

// JobStatus is one observation of a batch job's progress.
type JobStatus struct {
	TotalCount     int
	ProcessedCount int
	Status         JobState
}
