package parsers

import (
	"errors"
	"fmt"
	"strings"
)

// KeySeparator joins the fields of a derived session key.
const KeySeparator = "."

// DefaultKeyFields are the fields a session key is built from unless
// configured otherwise.
var DefaultKeyFields = []string{FieldContainer, FieldThread, FieldTimestamp}

var ErrNoKeyFields = errors.New("no session key fields")

// KeyFunc derives the session key for a match.
type KeyFunc func(Match) string

// KeyFields returns a KeyFunc that joins the named fields of a match.
// A positive tsPrefix truncates the timestamp to its first tsPrefix bytes
// so lines from the same session a few seconds apart share one key.
func KeyFields(fields []string, tsPrefix int) (KeyFunc, error) {
	if len(fields) == 0 {
		return nil, ErrNoKeyFields
	}

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f))
		if _, err := (Match{}).Field(name); err != nil {
			return nil, fmt.Errorf("session key: %w", err)
		}
		names = append(names, name)
	}

	return func(m Match) string {
		parts := make([]string, len(names))
		for i, name := range names {
			v, _ := m.Field(name)
			if name == FieldTimestamp && tsPrefix > 0 && len(v) > tsPrefix {
				v = v[:tsPrefix]
			}
			parts[i] = v
		}
		return strings.Join(parts, KeySeparator)
	}, nil
}

// DefaultKey is the KeyFunc for DefaultKeyFields with a minute-precision
// timestamp prefix.
func DefaultKey(m Match) string {
	return m.Container + KeySeparator + m.Thread + KeySeparator + prefix(m.Timestamp, 16)
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
