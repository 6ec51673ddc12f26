package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^\+[0-9]{7,15}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{4,10}$`)
)

// NormalizePhone strips formatting characters and validates the result as an
// international number: leading +, 7 to 15 digits.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(phone))

	if !phonePattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: phone must be +<country><number> with 7-15 digits", ErrValidation)
	}
	return cleaned, nil
}

// ValidateCode checks a one-time login code: 4 to 10 digits.
func ValidateCode(code string) error {
	if !codePattern.MatchString(strings.TrimSpace(code)) {
		return fmt.Errorf("%w: code must be 4-10 digits", ErrValidation)
	}
	return nil
}

// ValidatePassword checks a cloud password: non-empty, at most 256 bytes.
func ValidatePassword(password string) error {
	if password == "" || len(password) > 256 {
		return fmt.Errorf("%w: password must be 1-256 characters", ErrValidation)
	}
	return nil
}

// RedactPhone hides the middle digits of a phone number for logging.
func RedactPhone(phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) <= 4 {
		return "+****"
	}
	return "+" + digits[:2] + strings.Repeat("*", len(digits)-4) + digits[len(digits)-2:]
}
