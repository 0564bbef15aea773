package deposit

import (
	"errors"
	"fmt"
)

// ErrInvalidUsername is returned by ValidateUsername, and wraps every
// specific validity failure so callers can match on it with errors.Is.
var ErrInvalidUsername = errors.New("deposit: invalid username")

// ValidateUsername enforces the plaintext-messenger username convention:
// 1-32 characters, first character an ASCII letter, remaining characters
// letters/digits/underscore, no trailing underscore, no two consecutive
// underscores.
func ValidateUsername(u string) error {
	if len(u) < 1 || len(u) > 32 {
		return fmt.Errorf("%w: length %d not in [1, 32]", ErrInvalidUsername, len(u))
	}
	if !isASCIILetter(u[0]) {
		return fmt.Errorf("%w: must start with a letter", ErrInvalidUsername)
	}
	if u[len(u)-1] == '_' {
		return fmt.Errorf("%w: must not end with an underscore", ErrInvalidUsername)
	}
	prevUnderscore := false
	for i := 0; i < len(u); i++ {
		c := u[i]
		switch {
		case isASCIILetter(c) || isASCIIDigit(c):
			prevUnderscore = false
		case c == '_':
			if prevUnderscore {
				return fmt.Errorf("%w: must not contain consecutive underscores", ErrInvalidUsername)
			}
			prevUnderscore = true
		default:
			return fmt.Errorf("%w: character %q is not a letter, digit, or underscore", ErrInvalidUsername, c)
		}
	}
	return nil
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isASCIIDigit(c byte) bool  { return c >= '0' && c <= '9' }
