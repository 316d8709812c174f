package valhalla

import "fmt"

// ContractViolationError reports a caller error detected before any network
// activity. Never retried.
type ContractViolationError struct {
	Reason string
}

func (e *ContractViolationError) Error() string {
	return "valhalla: contract violation: " + e.Reason
}

// ServiceError reports a non-success response from the routing service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("valhalla: route returned status %d", e.StatusCode)
}

// MalformedResultError reports a response missing its expected structure.
type MalformedResultError struct {
	Op string
}

func (e *MalformedResultError) Error() string {
	return "valhalla: malformed result from " + e.Op
}
