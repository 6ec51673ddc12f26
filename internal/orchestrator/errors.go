package orchestrator

import "errors"

// Sentinel errors returned by Manager operations. Callers (the HTTP layer in
// particular) match them with errors.Is to pick a response code.
var (
	// ErrNotFound - unknown job identifier or session phone.
	ErrNotFound = errors.New("not found")

	// ErrConflict - an active job already exists for the phone and the caller
	// did not force a new attempt.
	ErrConflict = errors.New("active job already exists for phone")

	// ErrInvalidState - the operation does not apply to the job's current
	// state. The job is left untouched.
	ErrInvalidState = errors.New("operation not valid in current job state")

	// ErrValidation - malformed phone, code, or password. Nothing mutated.
	ErrValidation = errors.New("validation failed")

	// ErrResourceExhausted - the cap on simultaneously open browser handles
	// is reached. No job is created.
	ErrResourceExhausted = errors.New("concurrency cap reached")

	// ErrManagerClosed - the manager is draining and accepts no new work.
	ErrManagerClosed = errors.New("manager is shut down")
)

// Error kinds recorded on a job when it ends badly. They mirror how the
// attempt went wrong, not which Go error type caused it.
const (
	ErrKindDriver      = "driver"
	ErrKindPersistence = "persistence"
	ErrKindTimeout     = "timeout"
	ErrKindAttempts    = "attempts_exhausted"
)

// JobError is the last error recorded on a job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	return e.Kind + ": " + e.Message
}
