// Package orchestrator coordinates phone login jobs against the Telegram Web
// surface: a registry of per-phone state machines, each owning one live
// browser handle, with a global cap on how many handles may be open at once.
//
// The flow is inherently asynchronous - the one-time code arrives out-of-band
// and is submitted by a later, independent call - so a parked job is explicit
// state plus an armed deadline, never a blocked goroutine.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okulovsky/tgweb-automation/internal/browser"
)

// SessionStore is the durable session persistence the manager depends on.
// *sessionstore.Store satisfies it.
type SessionStore interface {
	Exists(phone string) (bool, error)
	Put(phone string, state []byte) error
	Touch(phone string) error
}

// Config configures a Manager.
type Config struct {
	// MaxConcurrent caps simultaneously open browser handles.
	MaxConcurrent int

	// InputDeadline is how long a job may wait for a code or password.
	InputDeadline time.Duration

	// MaxCodeAttempts is how many rejected credentials end the job.
	MaxCodeAttempts int

	// LaunchRetries is how many extra launch attempts follow a driver error.
	LaunchRetries int

	// LaunchTimeout bounds one launch-and-navigate cycle.
	LaunchTimeout time.Duration

	// DefaultHeadless applies when the caller does not specify a mode.
	DefaultHeadless bool

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   4,
		InputDeadline:   5 * time.Minute,
		MaxCodeAttempts: 3,
		LaunchRetries:   2,
		LaunchTimeout:   90 * time.Second,
		DefaultHeadless: true,
	}
}

// Manager owns the job registry. It enforces at-most-one-active-job-per-phone
// and the global handle cap, and drains cleanly on shutdown.
type Manager struct {
	cfg    Config
	driver browser.Driver
	store  SessionStore
	logger *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]*Job   // job id -> job
	byPhone map[string]string // phone -> active (non-terminal) job id
	closed  bool

	slots chan struct{} // counting admission gate for open handles

	launchCtx    context.Context
	cancelLaunch context.CancelFunc
	wg           sync.WaitGroup

	// OnTerminal, when set, is invoked once per job after it reaches a
	// terminal state (run logging, metrics). Called outside manager locks.
	OnTerminal func(Snapshot)
}

// NewManager creates a manager around a driver and session store.
func NewManager(driver browser.Driver, store SessionStore, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.InputDeadline <= 0 {
		cfg.InputDeadline = DefaultConfig().InputDeadline
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = DefaultConfig().MaxCodeAttempts
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = DefaultConfig().LaunchTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:          cfg,
		driver:       driver,
		store:        store,
		logger:       cfg.Logger,
		jobs:         make(map[string]*Job),
		byPhone:      make(map[string]string),
		slots:        make(chan struct{}, cfg.MaxConcurrent),
		launchCtx:    ctx,
		cancelLaunch: cancel,
	}
}

// StartLogin begins (or short-circuits) a login attempt for a phone number.
//
// With force=false a stored session wins immediately: no job, no browser, no
// slot. An active job for the same phone is a Conflict. With force=true the
// prior active job is cancelled first and a fresh attempt always starts.
// Returns without waiting for the browser; the job advances in the background
// until it parks at waiting_for_otp.
func (m *Manager) StartLogin(phone string, force bool, headless *bool) (Snapshot, error) {
	norm, err := NormalizePhone(phone)
	if err != nil {
		return Snapshot{}, err
	}

	if !force {
		ok, err := m.store.Exists(norm)
		if err != nil {
			m.logger.Warn("session lookup failed, proceeding with fresh login",
				"phone", RedactPhone(norm), "error", err)
		} else if ok {
			if err := m.store.Touch(norm); err != nil {
				m.logger.Warn("touch session", "phone", RedactPhone(norm), "error", err)
			}
			m.logger.Info("reusing stored session", "phone", RedactPhone(norm))
			return Snapshot{
				Phone:      norm,
				State:      StateCompleted,
				Status:     StateCompleted.String(),
				SessionRef: norm,
			}, nil
		}
	}

	hl := m.cfg.DefaultHeadless
	if headless != nil {
		hl = *headless
	}

	var job *Job
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Snapshot{}, ErrManagerClosed
		}

		if prevID, active := m.byPhone[norm]; active {
			prev := m.jobs[prevID]
			m.mu.Unlock()
			if !force {
				return Snapshot{}, fmt.Errorf("%w: %s (job %s)", ErrConflict, RedactPhone(norm), prevID)
			}
			m.logger.Info("superseding active job",
				"phone", RedactPhone(norm), "job_id", prevID)
			prev.cancel()
			continue // re-check: cancellation cleared the phone index
		}

		select {
		case m.slots <- struct{}{}:
		default:
			m.mu.Unlock()
			return Snapshot{}, fmt.Errorf("%w: %d handles open", ErrResourceExhausted, m.cfg.MaxConcurrent)
		}

		job = m.newJob(norm)
		m.jobs[job.id] = job
		m.byPhone[norm] = job.id
		m.mu.Unlock()
		break
	}

	m.logger.Info("login job created",
		"job_id", job.id,
		"phone", RedactPhone(norm),
		"headless", hl,
		"force", force)

	m.wg.Add(1)
	go m.runLaunch(job, hl)

	return job.Snapshot(), nil
}

func (m *Manager) newJob(phone string) *Job {
	now := time.Now()
	j := &Job{
		id:        uuid.New().String(),
		phone:     phone,
		state:     StateCreated,
		createdAt: now,
		updatedAt: now,
		logger:    m.logger,
	}
	j.releaseSlot = func() { <-m.slots }
	j.onTerminal = func(done *Job) {
		m.mu.Lock()
		if m.byPhone[done.phone] == done.id {
			delete(m.byPhone, done.phone)
		}
		m.mu.Unlock()
		if m.OnTerminal != nil {
			m.OnTerminal(done.Snapshot())
		}
	}
	return j
}

// runLaunch drives created -> launching -> waiting_for_otp in the background.
func (m *Manager) runLaunch(j *Job, headless bool) {
	defer m.wg.Done()

	if !j.compareAndTransition(StateCreated, StateLaunching) {
		return // cancelled before the browser ever started
	}

	var handle browser.Handle
	var lastErr error
	for attempt := 0; attempt <= m.cfg.LaunchRetries; attempt++ {
		if j.State().Terminal() {
			return
		}
		if attempt > 0 {
			m.logger.Warn("retrying browser launch",
				"job_id", j.id, "attempt", attempt, "error", lastErr)
		}

		ctx, cancel := context.WithTimeout(m.launchCtx, m.cfg.LaunchTimeout)
		h, err := m.driver.Launch(ctx, headless)
		if err == nil {
			err = h.BeginLogin(ctx, j.phone)
			if err != nil {
				_ = h.Close()
			}
		}
		cancel()

		if err == nil {
			handle = h
			lastErr = nil
			break
		}
		lastErr = err
	}

	if lastErr != nil {
		j.finish(StateFailed, &JobError{Kind: ErrKindDriver, Message: lastErr.Error()}, "")
		return
	}
	if !j.attachHandle(handle) {
		return // finished while launching; attachHandle closed the browser
	}

	j.armDeadline(m.cfg.InputDeadline)
	if !j.compareAndTransition(StateLaunching, StateWaitingOTP) {
		return
	}

	m.logger.Info("job waiting for code",
		"job_id", j.id,
		"phone", RedactPhone(j.phone),
		"deadline", m.cfg.InputDeadline)
}

// SubmitOTP forwards a one-time code to a job parked in waiting_for_otp.
func (m *Manager) SubmitOTP(ctx context.Context, jobID, code string) (Snapshot, error) {
	if err := ValidateCode(code); err != nil {
		return Snapshot{}, err
	}
	j, err := m.job(jobID)
	if err != nil {
		return Snapshot{}, err
	}

	j.flowMu.Lock()
	defer j.flowMu.Unlock()

	if st := j.State(); st != StateWaitingOTP {
		return j.Snapshot(), fmt.Errorf("%w: job is %s, expected %s",
			ErrInvalidState, st, StateWaitingOTP)
	}

	result, err := j.handleRef().SubmitCode(ctx, code)
	if err != nil {
		j.finish(StateFailed, &JobError{Kind: ErrKindDriver, Message: err.Error()}, "")
		return j.Snapshot(), nil
	}

	switch result {
	case browser.CodeRejected:
		attempts, exhausted := j.recordRejection(m.cfg.MaxCodeAttempts)
		m.logger.Info("code rejected",
			"job_id", j.id, "attempts", attempts, "max", m.cfg.MaxCodeAttempts)
		if exhausted {
			j.finish(StateFailed, &JobError{
				Kind:    ErrKindAttempts,
				Message: fmt.Sprintf("code rejected %d times", attempts),
			}, "")
		}

	case browser.CodeNeedsSecondary:
		if j.compareAndTransition(StateWaitingOTP, StateWaiting2FA) {
			j.resetAttempts()
			j.armDeadline(m.cfg.InputDeadline)
			m.logger.Info("cloud password required", "job_id", j.id)
		}

	case browser.CodeAccepted:
		if j.compareAndTransition(StateWaitingOTP, StateFinalizing) {
			m.finalize(ctx, j)
		}
	}

	return j.Snapshot(), nil
}

// Submit2FA forwards the cloud password to a job parked in waiting_for_2fa.
func (m *Manager) Submit2FA(ctx context.Context, jobID, password string) (Snapshot, error) {
	if err := ValidatePassword(password); err != nil {
		return Snapshot{}, err
	}
	j, err := m.job(jobID)
	if err != nil {
		return Snapshot{}, err
	}

	j.flowMu.Lock()
	defer j.flowMu.Unlock()

	if st := j.State(); st != StateWaiting2FA {
		return j.Snapshot(), fmt.Errorf("%w: job is %s, expected %s",
			ErrInvalidState, st, StateWaiting2FA)
	}

	result, err := j.handleRef().SubmitSecondary(ctx, password)
	if err != nil {
		j.finish(StateFailed, &JobError{Kind: ErrKindDriver, Message: err.Error()}, "")
		return j.Snapshot(), nil
	}

	switch result {
	case browser.SecondaryRejected:
		attempts, exhausted := j.recordRejection(m.cfg.MaxCodeAttempts)
		m.logger.Info("password rejected",
			"job_id", j.id, "attempts", attempts, "max", m.cfg.MaxCodeAttempts)
		if exhausted {
			j.finish(StateFailed, &JobError{
				Kind:    ErrKindAttempts,
				Message: fmt.Sprintf("password rejected %d times", attempts),
			}, "")
		}

	case browser.SecondaryAccepted:
		if j.compareAndTransition(StateWaiting2FA, StateFinalizing) {
			m.finalize(ctx, j)
		}
	}

	return j.Snapshot(), nil
}

// finalize exports the authenticated state and persists it. A login that
// cannot be durably stored is reported failed, never completed: a session
// without a record is unusable to every later caller.
func (m *Manager) finalize(ctx context.Context, j *Job) {
	state, err := j.handleRef().ExportState(ctx)
	if err != nil {
		j.finish(StateFailed, &JobError{Kind: ErrKindDriver, Message: err.Error()}, "")
		return
	}
	if err := m.store.Put(j.phone, state); err != nil {
		j.finish(StateFailed, &JobError{Kind: ErrKindPersistence, Message: err.Error()}, "")
		return
	}
	j.finish(StateCompleted, nil, j.phone)
}

// Status returns a snapshot of a job. An overdue job is expired on read, so
// callers never observe a waiting state whose deadline has already passed;
// the check-and-transition guard keeps this safe against a racing sweep.
func (m *Manager) Status(jobID string) (Snapshot, error) {
	j, err := m.job(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	j.expire(time.Now())
	return j.Snapshot(), nil
}

// Cancel idempotently cancels a job. Unknown identifiers are NotFound;
// cancelling a terminal job is a successful no-op.
func (m *Manager) Cancel(jobID string) error {
	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	j.cancel()
	return nil
}

// ExpireOverdue finishes every job whose input deadline has passed. Returns
// the number of jobs expired. Each job expires at most once regardless of how
// many sweeps or status polls race here.
func (m *Manager) ExpireOverdue(now time.Time) int {
	expired := 0
	for _, j := range m.snapshotJobs() {
		if j.expire(now) {
			expired++
		}
	}
	return expired
}

// PruneTerminal drops terminal jobs whose last update is older than the
// retention window, so the registry stays bounded between restarts.
func (m *Manager) PruneTerminal(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, j := range m.jobs {
		snap := j.Snapshot()
		if snap.State.Terminal() && snap.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			pruned++
		}
	}
	return pruned
}

// Summary aggregates registry state for the status endpoint.
type Summary struct {
	Jobs       int            `json:"jobs"`
	ByStatus   map[string]int `json:"by_status"`
	SlotsInUse int            `json:"slots_in_use"`
	SlotsTotal int            `json:"slots_total"`
}

// Summarize counts jobs by state and reports slot usage.
func (m *Manager) Summarize() Summary {
	jobs := m.snapshotJobs()
	s := Summary{
		Jobs:       len(jobs),
		ByStatus:   make(map[string]int),
		SlotsInUse: len(m.slots),
		SlotsTotal: cap(m.slots),
	}
	for _, j := range jobs {
		s.ByStatus[j.State().String()]++
	}
	return s
}

// Jobs returns snapshots of every registered job, in no particular order.
func (m *Manager) Jobs() []Snapshot {
	jobs := m.snapshotJobs()
	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Drain cancels all non-terminal jobs, releases their browser handles, and
// waits for in-flight launches to stop. The manager accepts no work after.
func (m *Manager) Drain() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancelLaunch()
	for _, j := range m.snapshotJobs() {
		j.cancel()
	}
	m.wg.Wait()
	m.logger.Info("manager drained")
}

func (m *Manager) job(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	return j, nil
}

func (m *Manager) snapshotJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}
