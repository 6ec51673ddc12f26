package orchestrator

// State is a login job's position in its lifecycle.
//
// The transition graph is a DAG into exactly one terminal state; the only
// permitted repeat is the self-loop on an invalid code in StateWaitingOTP.
type State int

const (
	// StateCreated - job registered, browser not yet launched.
	StateCreated State = iota
	// StateLaunching - browser starting and navigating to the login surface.
	StateLaunching
	// StateWaitingOTP - parked at the code input, deadline armed.
	StateWaitingOTP
	// StateWaiting2FA - code accepted, cloud password required, deadline armed.
	StateWaiting2FA
	// StateFinalizing - credentials accepted, exporting and persisting state.
	StateFinalizing
	// StateCompleted - session durably stored. Terminal.
	StateCompleted
	// StateFailed - launch, credential, or persistence failure. Terminal.
	StateFailed
	// StateExpired - input deadline elapsed. Terminal.
	StateExpired
	// StateCancelled - explicitly cancelled by a caller. Terminal.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLaunching:
		return "launching"
	case StateWaitingOTP:
		return "waiting_for_otp"
	case StateWaiting2FA:
		return "waiting_for_2fa"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the job.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateExpired, StateCancelled:
		return true
	default:
		return false
	}
}

// AwaitsInput reports whether the state waits on an out-of-band credential.
func (s State) AwaitsInput() bool {
	return s == StateWaitingOTP || s == StateWaiting2FA
}
