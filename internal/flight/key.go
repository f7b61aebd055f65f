package flight

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	MinKeyLen = 2
	MaxKeyLen = 10
)

var ErrInvalidKey = errors.New("invalid flight number")

// KeyError reports the raw key that failed normalization.
type KeyError struct {
	Raw    string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid flight number %q: %s", e.Raw, e.Reason)
}

func (e *KeyError) Unwrap() error { return ErrInvalidKey }

// Key is one submitted designator: as sent (trimmed) and normalized.
type Key struct {
	Raw        string
	Normalized string
}

// Normalize strips whitespace and hyphens and uppercases raw.
// The result must be ASCII alphanumeric with length in [MinKeyLen, MaxKeyLen].
func Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	key := b.String()
	for _, r := range key {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", &KeyError{Raw: strings.TrimSpace(raw), Reason: "must be alphanumeric"}
		}
	}
	if n := len(key); n < MinKeyLen || n > MaxKeyLen {
		return "", &KeyError{Raw: strings.TrimSpace(raw), Reason: fmt.Sprintf("length must be between %d and %d", MinKeyLen, MaxKeyLen)}
	}
	return key, nil
}

// ParseList splits a comma-delimited batch and normalizes every entry.
// One bad entry rejects the whole list. Duplicates are kept.
func ParseList(list string) ([]Key, error) {
	parts := strings.Split(list, ",")
	keys := make([]Key, 0, len(parts))
	for _, p := range parts {
		n, err := Normalize(p)
		if err != nil {
			return nil, err
		}
		keys = append(keys, Key{Raw: strings.TrimSpace(p), Normalized: n})
	}
	return keys, nil
}
