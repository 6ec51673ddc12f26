package orchestrator

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+15551234567", "+15551234567", false},
		{"+1 555 123-4567", "+15551234567", false},
		{"+1 (555) 123.4567", "+15551234567", false},
		{"  +79261234567  ", "+79261234567", false},
		{"+1234567", "+1234567", false},           // 7 digits, minimum
		{"+123456789012345", "+123456789012345", false}, // 15 digits, maximum
		{"15551234567", "", true},                 // missing plus
		{"+123456", "", true},                     // too short
		{"+1234567890123456", "", true},           // too long
		{"+1555abc4567", "", true},
		{"", "", true},
		{"++15551234567", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("NormalizePhone(%q) err = %v, want ErrValidation", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizePhone(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateCode(t *testing.T) {
	for _, code := range []string{"1234", "12345", "1234567890"} {
		if err := ValidateCode(code); err != nil {
			t.Errorf("ValidateCode(%q) = %v, want nil", code, err)
		}
	}
	for _, code := range []string{"", "123", "12345678901", "12 45", "abcd", "12-45"} {
		if err := ValidateCode(code); !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateCode(%q) = %v, want ErrValidation", code, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("x"); err != nil {
		t.Errorf("single-char password rejected: %v", err)
	}
	if err := ValidatePassword(""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty password accepted")
	}
	long := make([]byte, 257)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidatePassword(string(long)); !errors.Is(err, ErrValidation) {
		t.Errorf("257-char password accepted")
	}
}

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+15*******67"},
		{"+1234567", "+12***67"},
		{"+123", "+****"},
		{"", "+****"},
	}
	for _, tt := range tests {
		if got := RedactPhone(tt.in); got != tt.want {
			t.Errorf("RedactPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateLaunching, "launching"},
		{StateWaitingOTP, "waiting_for_otp"},
		{StateWaiting2FA, "waiting_for_2fa"},
		{StateFinalizing, "finalizing"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{StateExpired, "expired"},
		{StateCancelled, "cancelled"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{
		StateCompleted: true,
		StateFailed:    true,
		StateExpired:   true,
		StateCancelled: true,
	}
	for s := StateCreated; s <= StateCancelled; s++ {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, terminal[s])
		}
	}
}
