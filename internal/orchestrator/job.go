package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/okulovsky/tgweb-automation/internal/browser"
)

// Job is one login attempt for one phone number. It exclusively owns its
// browser handle from the moment the launch goroutine attaches it until the
// job enters a terminal state, at which point the handle and the concurrency
// slot are released exactly once.
//
// Two locks with distinct roles:
//   - mu guards the mutable fields and is never held across a driver call,
//     so status snapshots stay cheap while the browser is busy.
//   - flowMu serializes credential submissions; it IS held across the driver
//     call so exactly one submission can drive a given transition.
type Job struct {
	id    string
	phone string

	flowMu sync.Mutex

	mu        sync.RWMutex
	state     State
	createdAt time.Time
	updatedAt time.Time
	deadline  time.Time
	attempts  int
	lastErr   *JobError
	sessionRef string

	handle      browser.Handle
	released    bool
	releaseSlot func()
	onTerminal  func(*Job)

	logger *slog.Logger
}

// Snapshot is an immutable view of a job for status reporting.
type Snapshot struct {
	JobID      string     `json:"job_id"`
	Phone      string     `json:"phone"`
	State      State      `json:"-"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	Err        *JobError  `json:"error,omitempty"`
	SessionRef string     `json:"session_ref,omitempty"`
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Phone() string {
	return j.phone
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Snapshot returns a point-in-time copy of the job's observable fields.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := Snapshot{
		JobID:      j.id,
		Phone:      j.phone,
		State:      j.state,
		Status:     j.state.String(),
		CreatedAt:  j.createdAt,
		UpdatedAt:  j.updatedAt,
		Attempts:   j.attempts,
		Err:        j.lastErr,
		SessionRef: j.sessionRef,
	}
	if !j.deadline.IsZero() {
		d := j.deadline
		snap.Deadline = &d
	}
	return snap
}

// compareAndTransition moves the job from one non-terminal state to another
// only if it is still in the expected state. Returns false when a concurrent
// transition (expiry, cancellation) won the race.
func (j *Job) compareAndTransition(from, to State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != from {
		return false
	}
	j.state = to
	j.updatedAt = time.Now()
	if !to.AwaitsInput() {
		j.deadline = time.Time{}
	}
	return true
}

// armDeadline sets the input deadline; called on entry into a waiting state.
func (j *Job) armDeadline(d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deadline = time.Now().Add(d)
	j.updatedAt = time.Now()
}

// recordRejection counts one invalid credential and reports whether the limit
// is now exhausted. The deadline is deliberately left armed - a bad guess does
// not buy more time.
func (j *Job) recordRejection(maxAttempts int) (attempts int, exhausted bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	j.updatedAt = time.Now()
	return j.attempts, j.attempts >= maxAttempts
}

// resetAttempts clears the counter when the flow advances to a new factor.
func (j *Job) resetAttempts() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = 0
}

// attachHandle hands the launched browser to the job. If the job already
// reached a terminal state (cancelled or expired during launch) the handle is
// closed immediately and false is returned; the caller must abandon the flow.
func (j *Job) attachHandle(h browser.Handle) bool {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		_ = h.Close()
		return false
	}
	j.handle = h
	j.mu.Unlock()
	return true
}

// handleRef returns the current browser handle (nil before launch completes).
func (j *Job) handleRef() browser.Handle {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.handle
}

// finish moves the job into a terminal state from whatever non-terminal state
// it is in, recording the error and session reference, and performs the
// exactly-once release of the browser handle and concurrency slot. Returns
// false if the job was already terminal (a concurrent finish won).
func (j *Job) finish(to State, jerr *JobError, sessionRef string) bool {
	if !to.Terminal() {
		panic("orchestrator: finish called with non-terminal state " + to.String())
	}

	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return false
	}
	from := j.state
	j.state = to
	j.updatedAt = time.Now()
	j.deadline = time.Time{}
	if jerr != nil {
		j.lastErr = jerr
	}
	if sessionRef != "" {
		j.sessionRef = sessionRef
	}

	var handle browser.Handle
	var releaseSlot func()
	if !j.released {
		j.released = true
		handle = j.handle
		releaseSlot = j.releaseSlot
	}
	j.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			j.logger.Warn("closing browser handle", "job_id", j.id, "error", err)
		}
	}
	if releaseSlot != nil {
		releaseSlot()
	}

	j.logger.Info("job finished",
		"job_id", j.id,
		"phone", RedactPhone(j.phone),
		"from_state", from.String(),
		"to_state", to.String(),
		"error", jerr.Error())

	if j.onTerminal != nil {
		j.onTerminal(j)
	}
	return true
}

// expire finishes the job as expired if its armed deadline has passed.
// Safe to call concurrently; at most one caller performs the transition.
func (j *Job) expire(now time.Time) bool {
	j.mu.RLock()
	due := !j.state.Terminal() && !j.deadline.IsZero() && now.After(j.deadline)
	j.mu.RUnlock()
	if !due {
		return false
	}
	return j.finish(StateExpired, &JobError{
		Kind:    ErrKindTimeout,
		Message: "input deadline elapsed",
	}, "")
}

// cancel finishes the job as cancelled. Idempotent; a no-op on terminal jobs.
func (j *Job) cancel() {
	j.finish(StateCancelled, nil, "")
}
