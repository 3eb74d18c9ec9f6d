// Package searcher runs a batch session search over one directory.
package searcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chinab/octane-crawler/collector"
	"github.com/chinab/octane-crawler/config"
	"github.com/chinab/octane-crawler/output"
	"github.com/chinab/octane-crawler/parsers"
	"github.com/chinab/octane-crawler/session"
)

// ErrOutputOpen is returned when the report file cannot be created. It
// aborts the run before any file is scanned.
var ErrOutputOpen = errors.New("could not open output file")

// State is the position of a Searcher in its run.
type State int

const (
	Idle State = iota
	OutputOpened
	Scanning
	Finalizing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OutputOpened:
		return "output-opened"
	case Scanning:
		return "scanning"
	case Finalizing:
		return "finalizing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats summarizes a run.
type Stats struct {
	RunID        string
	Dir          string
	Term         string
	Output       string
	Format       output.Format
	FilesScanned int
	FilesFailed  int
	FilesSkipped int
	TotalFound   int
	Matches      int
	Sessions     int
	Elapsed      time.Duration
	Completed    bool
}

// Option customizes a Searcher.
type Option func(*Searcher)

// WithParser replaces the configured session parser.
func WithParser(p parsers.Parser) Option {
	return func(s *Searcher) { s.parser = p }
}

// WithKeyFunc replaces the configured session key derivation.
func WithKeyFunc(k parsers.KeyFunc) Option {
	return func(s *Searcher) { s.key = k }
}

// WithAfterRun installs a hook called once a run has completed.
func WithAfterRun(fn func(Stats)) Option {
	return func(s *Searcher) { s.afterRun = fn }
}

// Searcher scans every file of a directory into one session database and
// writes that database once to the report file.
type Searcher struct {
	cfg      *config.Config
	parser   parsers.Parser
	key      parsers.KeyFunc
	format   output.Format
	opts     collector.Options
	db       *session.Database
	log      zerolog.Logger
	afterRun func(Stats)

	state   State
	stats   Stats
	results []collector.Result
}

// New builds a Searcher from cfg.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Searcher, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	sizes, err := cfg.Reader.Sizes()
	if err != nil {
		return nil, err
	}

	s := &Searcher{
		cfg:    cfg,
		format: format,
		opts: collector.Options{
			Term:               cfg.Search.Term,
			IgnoreCase:         cfg.Search.IgnoreCase,
			Immediate:          cfg.Output.Immediate,
			BufferSize:         sizes.BufferSize,
			LargeFileThreshold: sizes.LargeFileThreshold,
			LargeBufferSize:    sizes.LargeBufferSize,
		},
		db: session.NewDatabase(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.parser == nil {
		p, err := parsers.New(cfg.Session.Pattern)
		if err != nil {
			return nil, err
		}
		s.parser = p
	}

	if s.key == nil {
		key, err := parsers.KeyFields(cfg.Session.KeyFields, cfg.Session.TimestampPrefix)
		if err != nil {
			return nil, err
		}
		s.key = key
	}

	s.stats.RunID = uuid.NewString()
	s.stats.Dir = cfg.Search.Dir
	s.stats.Term = cfg.Search.Term
	s.stats.Format = format
	s.log = log.With().Str("run_id", s.stats.RunID).Logger()

	return s, nil
}

// State returns where the searcher is in its run.
func (s *Searcher) State() State { return s.state }

// Stats returns the run statistics. They are final once Search returned.
func (s *Searcher) Stats() Stats { return s.stats }

// Database returns the shared session database.
func (s *Searcher) Database() *session.Database { return s.db }

// Results returns the per-file results in processing order.
func (s *Searcher) Results() []collector.Result { return s.results }

// Search runs the scan. An empty search term or a target that is not a
// directory is logged and ends the run with zero statistics and a nil
// error; only output failures are returned. The output is closed on every
// path.
func (s *Searcher) Search() (err error) {
	start := time.Now()

	sink, err := s.openOutput()
	if err != nil {
		s.state = Closed
		return err
	}
	s.state = OutputOpened

	defer func() {
		closeErr := sink.Close()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", closeErr)
		}
		s.state = Closed
		s.stats.Elapsed = time.Since(start)

		if sink.Path() != "" {
			abs, _ := filepath.Abs(sink.Path())
			s.log.Info().Str("path", abs).Str("dir", filepath.Dir(abs)).Msg("closed output file, see file for results")
		}
		if err == nil && s.stats.Completed {
			s.report()
		}
	}()

	term := s.cfg.Search.Term
	if term == "" {
		s.log.Info().Msg("invalid search term")
		return nil
	}

	dir := s.cfg.Search.Dir
	s.log.Info().Str("dir", dir).Msg("searching directory")
	s.log.Info().Str("term", term).Msg("searching for term")

	info, statErr := os.Stat(dir)
	if statErr != nil || !info.IsDir() {
		s.log.Info().Str("dir", dir).Msg("target path is not a directory, exiting")
		return nil
	}

	if err := sink.Begin(); err != nil {
		return fmt.Errorf("writing output preamble: %w", err)
	}
	s.state = Scanning

	files := s.listFiles(dir, sink)

	id := 0
	total := 0
	for _, path := range files {
		c := collector.New(s.parser, s.key, s.db, sink, s.opts, s.log)

		res, searchErr := c.Search(path, id)
		if searchErr != nil {
			s.log.Warn().Err(searchErr).Str("file", path).Msg("skipping unreadable file")
			s.stats.FilesFailed++
			continue
		}

		s.log.Debug().
			Str("file", path).
			Int("lines", res.Lines).
			Int("found", res.Found).
			Int("matches", res.Matches).
			Int("new_sessions", res.NewSessions).
			Int("next_id", res.NextID).
			Msg("scanned file")

		s.results = append(s.results, res)
		s.stats.FilesScanned++
		s.stats.Matches += res.Matches
		id = res.NextID
		total += res.Found
	}

	s.state = Finalizing

	n, err := collector.New(s.parser, s.key, s.db, sink, s.opts, s.log).WriteDatabase()
	if err != nil {
		return err
	}

	if err := sink.End(); err != nil {
		return fmt.Errorf("writing output epilogue: %w", err)
	}

	s.stats.TotalFound = total
	s.stats.Sessions = n
	s.stats.Completed = true

	return nil
}

func (s *Searcher) openOutput() (*output.Sink, error) {
	if !s.cfg.Output.Enabled || s.cfg.Output.File == "" {
		return output.Discard(s.format), nil
	}

	sink, err := output.Open(s.cfg.Output.File, s.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputOpen, err)
	}
	s.stats.Output = s.cfg.Output.File
	return sink, nil
}

// listFiles returns the immediate non-directory entries of dir that pass
// the include filter, in listing order. The report file itself is skipped
// when it lives in dir.
func (s *Searcher) listFiles(dir string, sink *output.Sink) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("reading directory")
	}

	var own os.FileInfo
	if sink.Path() != "" {
		own, _ = os.Stat(sink.Path())
	}

	include := s.cfg.Search.Include
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if include != "" {
			if ok, _ := doublestar.Match(include, e.Name()); !ok {
				s.stats.FilesSkipped++
				continue
			}
		}

		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			// Dangling symlinks and races surface as read errors in the
			// collector.
			files = append(files, path)
			continue
		}
		if info.IsDir() {
			continue
		}

		if own != nil && os.SameFile(own, info) {
			s.stats.FilesSkipped++
			continue
		}

		files = append(files, path)
	}
	return files
}

func (s *Searcher) report() {
	ms := s.stats.Elapsed.Milliseconds()

	s.log.Info().
		Str("term", s.stats.Term).
		Int("total", s.stats.TotalFound).
		Int("files", s.stats.FilesScanned).
		Int("sessions", s.stats.Sessions).
		Msg("found term in files")
	s.log.Info().
		Int64("ms", ms).
		Float64("seconds", float64(ms)/1000.0).
		Msg("search finished")

	if s.afterRun != nil {
		s.afterRun(s.stats)
	}
}
