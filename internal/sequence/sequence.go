// Package sequence renders and advances the human-readable order identifiers
// of the form PREFIX-NNNNNNN.
package sequence

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Width is the minimum number of digits of the counter
const Width = 7

// ErrMalformedToken is returned for tokens that are not PREFIX-digits
var ErrMalformedToken = errors.New("malformed sequence token")

var tokenPattern = regexp.MustCompile(`^(.+)-([0-9]+)$`)

// Parse splits a token into its prefix and counter
func Parse(token string) (string, uint64, error) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	n, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrMalformedToken, token, err)
	}

	return m[1], n, nil
}

// Format renders a token, zero-padding the counter to Width digits
func Format(prefix string, n uint64) string {
	return fmt.Sprintf("%s-%0*d", prefix, Width, n)
}

// Next returns the token that follows current. The counter grows past Width
// digits instead of wrapping.
func Next(current string) (string, error) {
	prefix, n, err := Parse(current)
	if err != nil {
		return "", err
	}
	if n == ^uint64(0) {
		return "", fmt.Errorf("%w: %q: counter overflow", ErrMalformedToken, current)
	}
	return Format(prefix, n+1), nil
}

// Validate reports whether token is well formed
func Validate(token string) error {
	_, _, err := Parse(token)
	return err
}
