// Package output writes the session report file.
package output

import (
	"bufio"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chinab/octane-crawler/session"
)

// Format specifies the report encoding.
type Format string

const (
	FormatPlain Format = "plain"
	FormatXML   Format = "xml"
	FormatCSV   Format = "csv"
)

const (
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8" ?>`
	xmlDoctype     = `<!DOCTYPE properties SYSTEM "http://java.sun.com/dtd/properties.dtd">`
	xmlOpen        = "<properties>"
	xmlClose       = "</properties>"
)

var csvHeader = []string{"key", "id", "count", "container", "thread", "timestamp", "level", "event", "source"}

var (
	ErrUnknownFormat = errors.New("unknown output format")
	ErrSinkClosed    = errors.New("output sink closed")
)

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatPlain, FormatXML, FormatCSV:
		return f, nil
	case "properties", "txt", "text":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
}

// Sink is the single report output of a run. Begin and End frame the
// document; WriteEntry and Note fill it.
type Sink struct {
	format  Format
	path    string
	file    *os.File
	w       *bufio.Writer
	cw      *csv.Writer
	entries int
	closed  bool
}

// Open creates (or truncates) the report file at path.
func Open(path string, format Format) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	s := NewSink(f, format)
	s.file = f
	s.path = path
	return s, nil
}

// NewSink returns a sink writing to w. Close flushes but does not close w.
func NewSink(w io.Writer, format Format) *Sink {
	s := &Sink{format: format, w: bufio.NewWriter(w)}
	if format == FormatCSV {
		s.cw = csv.NewWriter(s.w)
	}
	return s
}

// Discard returns a sink that drops everything, for runs with output
// disabled.
func Discard(format Format) *Sink {
	return NewSink(io.Discard, format)
}

func (s *Sink) Format() Format { return s.format }

// Path returns the file path, or "" for sinks not backed by a file.
func (s *Sink) Path() string { return s.path }

// Entries returns the number of entries written so far.
func (s *Sink) Entries() int { return s.entries }

// Begin writes the document preamble.
func (s *Sink) Begin() error {
	if s.closed {
		return ErrSinkClosed
	}
	switch s.format {
	case FormatXML:
		return s.lines(xmlDeclaration, xmlDoctype, xmlOpen)
	case FormatCSV:
		return s.row(csvHeader)
	default:
		return nil
	}
}

// End writes the document epilogue.
func (s *Sink) End() error {
	if s.closed {
		return ErrSinkClosed
	}
	if s.format == FormatXML {
		return s.lines(xmlClose)
	}
	return nil
}

// WriteEntry writes one session.
func (s *Sink) WriteEntry(info *session.Info) error {
	if s.closed {
		return ErrSinkClosed
	}
	s.entries++

	switch s.format {
	case FormatXML:
		var b strings.Builder
		b.WriteString(`  <entry key="`)
		escape(&b, info.Key)
		b.WriteString(`">`)
		escape(&b, Value(info))
		b.WriteString("</entry>")
		return s.lines(b.String())
	case FormatCSV:
		return s.row([]string{
			info.Key,
			strconv.Itoa(info.ID),
			strconv.Itoa(info.Count),
			info.Container,
			info.Thread,
			info.Timestamp,
			info.Level,
			info.Event,
			info.Source,
		})
	default:
		return s.lines(info.Key + "=" + Value(info))
	}
}

// Note writes a diagnostic line that readers of the document can ignore:
// an XML comment, or a '#' line otherwise.
func (s *Sink) Note(format string, args ...any) error {
	if s.closed {
		return ErrSinkClosed
	}
	text := fmt.Sprintf(format, args...)
	text = strings.ReplaceAll(text, "\n", " ")

	switch s.format {
	case FormatXML:
		text = commentText(text)
		// "--" is not allowed inside an XML comment.
		for strings.Contains(text, "--") {
			text = strings.ReplaceAll(text, "--", "- -")
		}
		if strings.HasSuffix(text, "-") {
			text += " "
		}
		return s.lines("  <!-- " + text + " -->")
	case FormatCSV:
		s.cw.Flush()
		if err := s.cw.Error(); err != nil {
			return err
		}
		return s.lines("# " + text)
	default:
		return s.lines("# " + text)
	}
}

// commentText replaces invalid UTF-8 and runes outside the XML Char
// production with U+FFFD.
func commentText(text string) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case r >= 0x20 && r <= 0xD7FF,
			r >= 0xE000 && r <= 0xFFFD,
			r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return '\uFFFD'
	}, text)
}

// Close flushes buffered output and closes the file. It is safe to call
// more than once.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.cw != nil {
		s.cw.Flush()
		errs = append(errs, s.cw.Error())
	}
	errs = append(errs, s.w.Flush())
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	return errors.Join(errs...)
}

// Value renders the properties value of a session.
func Value(info *session.Info) string {
	return fmt.Sprintf("id=%d count=%d level=%s event=%s source=%s",
		info.ID, info.Count, info.Level, info.Event, info.Source)
}

func (s *Sink) lines(lines ...string) error {
	for _, l := range lines {
		if _, err := s.w.WriteString(l); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) row(record []string) error {
	return s.cw.Write(record)
}

func escape(b *strings.Builder, text string) {
	// strings.Builder never returns a write error.
	_ = xml.EscapeText(b, []byte(text))
}
