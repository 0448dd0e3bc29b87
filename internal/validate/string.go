// Package validate provides input validation for identifiers and tags that
// arrive in query strings and request bodies.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// Length limits for request-supplied values.
const (
	MaxIdentifierLength = 128
	MaxTagLength        = 64
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length in runes (0 = no minimum)
	MaxLength      int            // Maximum length in runes (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional pattern the whole string must match
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
// Control characters and invalid UTF-8 are always rejected.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidCharacters)
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: control characters", ErrInvalidCharacters)
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// Identifier validates a user or candidate id: 1-128 characters with no
// control characters. Surrounding whitespace is trimmed.
func Identifier(id string) (string, error) {
	return String(id, StringConstraints{
		MinLength: 1,
		MaxLength: MaxIdentifierLength,
		TrimSpace: true,
	})
}

// OptionalIdentifier is Identifier but accepts the empty string.
func OptionalIdentifier(id string) (string, error) {
	return String(id, StringConstraints{
		MaxLength:  MaxIdentifierLength,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

var tagPattern = regexp.MustCompile(`^[\p{L}\p{N}_\-.+#]+$`)

// Tag validates an optional tag filter: up to 64 letters, digits or _-.+#.
// Tags are case-sensitive and returned trimmed.
func Tag(tag string) (string, error) {
	return String(tag, StringConstraints{
		MaxLength:      MaxTagLength,
		AllowedPattern: tagPattern,
		AllowEmpty:     true,
		TrimSpace:      true,
	})
}
