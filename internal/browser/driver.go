// Package browser drives the Telegram Web login surface through an automated
// Chrome instance.
//
// The package exposes a small capability contract (Driver/Handle) so the
// orchestrator never touches DevTools directly: a Handle is a live browser
// bound to exactly one login attempt, and everything it does is high-latency
// and cancellable through the caller's context.
package browser

import (
	"context"
	"errors"
)

// ErrDriver marks any automation-level failure (launch, navigation, DOM
// interaction, state export). Callers match it with errors.Is.
var ErrDriver = errors.New("browser driver failure")

// CodeResult is the outcome of submitting a one-time login code.
type CodeResult int

const (
	// CodeAccepted - the code was accepted and no further factor is needed.
	CodeAccepted CodeResult = iota
	// CodeNeedsSecondary - the code was accepted but the account requires a
	// cloud password before the session becomes usable.
	CodeNeedsSecondary
	// CodeRejected - the surface rejected the code as invalid.
	CodeRejected
)

func (r CodeResult) String() string {
	switch r {
	case CodeAccepted:
		return "accepted"
	case CodeNeedsSecondary:
		return "needs_secondary"
	case CodeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SecondaryResult is the outcome of submitting the cloud password.
type SecondaryResult int

const (
	// SecondaryAccepted - the password was accepted and login is complete.
	SecondaryAccepted SecondaryResult = iota
	// SecondaryRejected - the password was rejected.
	SecondaryRejected
)

func (r SecondaryResult) String() string {
	switch r {
	case SecondaryAccepted:
		return "accepted"
	case SecondaryRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Handle is a live automated browser bound to one login attempt.
//
// All methods may take seconds. Close is idempotent and must release every
// underlying resource even after a prior error; it is the single point the
// orchestrator relies on to guarantee nothing leaks.
type Handle interface {
	// BeginLogin navigates to the login surface, enters the phone number and
	// requests a one-time code. On return the surface is parked at the code
	// input, ready for SubmitCode.
	BeginLogin(ctx context.Context, phone string) error

	// SubmitCode types the one-time code and reports how the surface reacted.
	SubmitCode(ctx context.Context, code string) (CodeResult, error)

	// SubmitSecondary types the cloud password after CodeNeedsSecondary.
	SubmitSecondary(ctx context.Context, password string) (SecondaryResult, error)

	// ExportState serializes the authenticated browsing context (cookies plus
	// local storage) into an opaque blob that can later seed a fresh context.
	ExportState(ctx context.Context) ([]byte, error)

	// Close tears the browser down. Safe to call more than once.
	Close() error
}

// Driver launches login-bound browser handles.
type Driver interface {
	Launch(ctx context.Context, headless bool) (Handle, error)
}
