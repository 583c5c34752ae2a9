package shared

import "errors"

// Error taxonomy shared by every module. Domain packages wrap these
// sentinels with their own named errors so callers can match either the
// specific failure or its class via errors.Is.
var (
	// ErrValidation indicates malformed input, rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrPrecondition indicates the operation is not allowed in the current state.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound indicates a referenced record is missing.
	ErrNotFound = errors.New("not found")
	// ErrResourceUnavailable indicates no usable resource (warehouse, vendor,
	// transfer source) could be resolved for the request.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrConflict indicates a conflicting concurrent update; callers should retry.
	ErrConflict = errors.New("concurrent update conflict")
)
