package parsers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Match is the structured view of one line that hit the session pattern.
type Match struct {
	Container string
	Thread    string
	Timestamp string
	Level     string
	Event     string
	RawLine   string
}

// Parser is the interface every session line format must implement.
type Parser interface {
	Name() string
	Parse(line string) (Match, bool)
}

// Field names accepted as named capture groups and as key fields.
const (
	FieldContainer = "container"
	FieldThread    = "thread"
	FieldTimestamp = "timestamp"
	FieldLevel     = "level"
	FieldEvent     = "event"
)

var ErrUnknownField = errors.New("unknown session field")

// fieldOrder is the positional group layout used when a pattern has no
// named groups.
var fieldOrder = []string{FieldContainer, FieldThread, FieldTimestamp, FieldLevel, FieldEvent}

// fieldAliases maps alternate group names onto the canonical field names.
var fieldAliases = map[string]string{
	"container": FieldContainer,
	"tag":       FieldContainer,
	"pool":      FieldContainer,
	"thread":    FieldThread,
	"tid":       FieldThread,
	"worker":    FieldThread,
	"timestamp": FieldTimestamp,
	"time":      FieldTimestamp,
	"ts":        FieldTimestamp,
	"level":     FieldLevel,
	"severity":  FieldLevel,
	"event":     FieldEvent,
	"category":  FieldEvent,
	"type":      FieldEvent,
}

// RegexParser extracts session fields from a line with a compiled regex.
// Named groups are matched through fieldAliases; a pattern without named
// groups is read positionally as container, thread, timestamp, level, event.
type RegexParser struct {
	name string
	re   *regexp.Regexp
	idx  map[string]int
}

// NewRegexParser compiles pattern and resolves its capture groups.
func NewRegexParser(name, pattern string) (*RegexParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid session pattern: %w", err)
	}

	idx := make(map[string]int)
	for i, group := range re.SubexpNames() {
		if i == 0 || group == "" {
			continue
		}
		if field, ok := fieldAliases[strings.ToLower(group)]; ok {
			if _, dup := idx[field]; !dup {
				idx[field] = i
			}
		}
	}

	if len(idx) == 0 {
		for i, field := range fieldOrder {
			if i+1 > re.NumSubexp() {
				break
			}
			idx[field] = i + 1
		}
	}

	if len(idx) == 0 {
		return nil, fmt.Errorf("invalid session pattern: %q has no capture groups", pattern)
	}

	return &RegexParser{name: name, re: re, idx: idx}, nil
}

func (p *RegexParser) Name() string {
	return p.name
}

// Parse returns the match for line, or false when the line does not hit
// the pattern.
func (p *RegexParser) Parse(line string) (Match, bool) {
	groups := p.re.FindStringSubmatch(line)
	if groups == nil {
		return Match{}, false
	}

	get := func(field string) string {
		if i, ok := p.idx[field]; ok {
			return strings.TrimSpace(groups[i])
		}
		return ""
	}

	return Match{
		Container: get(FieldContainer),
		Thread:    get(FieldThread),
		Timestamp: get(FieldTimestamp),
		Level:     get(FieldLevel),
		Event:     get(FieldEvent),
		RawLine:   line,
	}, true
}

// String returns the source pattern.
func (p *RegexParser) String() string {
	return p.re.String()
}

// Field returns the named field of m.
func (m Match) Field(name string) (string, error) {
	switch name {
	case FieldContainer:
		return m.Container, nil
	case FieldThread:
		return m.Thread, nil
	case FieldTimestamp:
		return m.Timestamp, nil
	case FieldLevel:
		return m.Level, nil
	case FieldEvent:
		return m.Event, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}
