// Package collector scans one log file for session lines and search term
// hits.
package collector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chinab/octane-crawler/output"
	"github.com/chinab/octane-crawler/parsers"
	"github.com/chinab/octane-crawler/session"
)

// Default reader sizes.
const (
	DefaultBufferSize         = 64 * 1024
	DefaultLargeFileThreshold = 10 * 1000 * 1000
	DefaultLargeBufferSize    = 1024 * 1024
)

// Options configures a Collector. Zero values take the defaults.
type Options struct {
	Term       string
	IgnoreCase bool

	// Immediate echoes every session match to the sink as a note. Notes
	// are written once the file was read completely, so a file that fails
	// mid-read leaves no notes behind.
	Immediate bool

	BufferSize         int
	LargeFileThreshold int64
	LargeBufferSize    int
}

// Result is what one file contributed to the run.
type Result struct {
	Path        string
	Found       int // lines containing the search term
	NextID      int // identifier seed for the next file
	Lines       int
	Matches     int // lines that hit the session pattern
	NewSessions int
}

// Collector scans files against a session parser and folds the matches
// into a shared database.
type Collector struct {
	parser parsers.Parser
	key    parsers.KeyFunc
	db     *session.Database
	sink   *output.Sink
	opts   Options
	log    zerolog.Logger
	term   string
}

// New returns a Collector bound to db and sink. A nil key uses
// parsers.DefaultKey.
func New(p parsers.Parser, key parsers.KeyFunc, db *session.Database, sink *output.Sink, opts Options, log zerolog.Logger) *Collector {
	if key == nil {
		key = parsers.DefaultKey
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.LargeFileThreshold <= 0 {
		opts.LargeFileThreshold = DefaultLargeFileThreshold
	}
	if opts.LargeBufferSize <= 0 {
		opts.LargeBufferSize = DefaultLargeBufferSize
	}

	term := opts.Term
	if opts.IgnoreCase {
		term = strings.ToLower(term)
	}

	return &Collector{
		parser: p,
		key:    key,
		db:     db,
		sink:   sink,
		opts:   opts,
		log:    log,
		term:   term,
	}
}

// Search scans the file at path, continuing the identifier sequence from
// seed. The database only changes if the whole file was read; on error the
// result carries seed unchanged and zero counts.
func (c *Collector) Search(path string, seed int) (Result, error) {
	res, err := c.search(path, seed)
	if err != nil {
		return Result{Path: path, NextID: seed}, err
	}
	return res, nil
}

func (c *Collector) search(path string, seed int) (Result, error) {
	res := Result{Path: path, NextID: seed}

	file, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	size := c.opts.BufferSize
	if info, statErr := file.Stat(); statErr == nil && info.Size() > c.opts.LargeFileThreshold {
		size = c.opts.LargeBufferSize
		c.log.Debug().Str("file", path).Int64("size", info.Size()).Int("buffer", size).Msg("large file")
	}

	return c.scan(bufio.NewReaderSize(file, size), filepath.Base(path), res)
}

// scan reads lines until EOF. Matches and their notes are staged and
// only reach the database and sink once the whole input was read.
func (c *Collector) scan(reader *bufio.Reader, source string, res Result) (Result, error) {
	batch := c.db.NewBatch()
	id := res.NextID
	var notes []string

	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return res, fmt.Errorf("reading %s: %w", res.Path, readErr)
		}
		if line == "" && readErr != nil {
			break
		}

		line = strings.TrimRight(line, "\r\n")
		res.Lines++

		if c.contains(line) {
			res.Found++
		}

		if m, ok := c.parser.Parse(line); ok {
			key := c.key(m)
			created := batch.Observe(key, id, m, source)
			res.Matches++
			if created {
				res.NewSessions++
			}
			if c.opts.Immediate {
				notes = append(notes, fmt.Sprintf("%d %s:%d %s %s %s", id, source, res.Lines, key, m.Level, m.Event))
			}
			id++
		}

		if readErr != nil {
			break
		}
	}

	for _, n := range notes {
		if err := c.sink.Note("%s", n); err != nil {
			return res, fmt.Errorf("writing note: %w", err)
		}
	}

	c.db.Apply(batch)
	res.NextID = id

	return res, nil
}

func (c *Collector) contains(line string) bool {
	if c.term == "" {
		return false
	}
	if c.opts.IgnoreCase {
		return strings.Contains(strings.ToLower(line), c.term)
	}
	return strings.Contains(line, c.term)
}

// WriteDatabase writes every session in insertion order to the sink.
func (c *Collector) WriteDatabase() (int, error) {
	n := 0
	var err error
	c.db.Each(func(info *session.Info) bool {
		if err = c.sink.WriteEntry(info); err != nil {
			return false
		}
		n++
		return true
	})
	if err != nil {
		return n, fmt.Errorf("writing session database: %w", err)
	}
	return n, nil
}
