package reporter

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/chinab/octane-crawler/analyzer"
	"github.com/chinab/octane-crawler/searcher"
	"github.com/chinab/octane-crawler/session"
)

// topSessions is how many sessions the console summary lists.
const topSessions = 10

// Summary writes the scan results table to w.
func Summary(s searcher.Stats, db *session.Database, w io.Writer) error {
	bold := color.New(color.Bold)

	fmt.Fprintln(w)
	bold.Fprintln(w, "  OCTANE SESSION SCAN - Results")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false

	out := s.Output
	if out == "" {
		out = "(disabled)"
	}

	tw.AppendRows([]table.Row{
		{"Directory", s.Dir},
		{"Search term", s.Term},
		{"Files scanned", humanize.Comma(int64(s.FilesScanned))},
		{"Files failed", humanize.Comma(int64(s.FilesFailed))},
		{"Files skipped", humanize.Comma(int64(s.FilesSkipped))},
		{"Term found", humanize.Comma(int64(s.TotalFound))},
		{"Session lines", humanize.Comma(int64(s.Matches))},
		{"Sessions", humanize.Comma(int64(s.Sessions))},
		{"Elapsed", fmt.Sprintf("%d ms (%.3f s)", s.Elapsed.Milliseconds(), s.Elapsed.Seconds())},
		{"Output", fmt.Sprintf("%s [%s]", out, s.Format)},
	})
	tw.Render()

	if db == nil || db.Len() == 0 {
		fmt.Fprintln(w, "\n  No sessions found.")
		return nil
	}

	b := analyzer.Analyze(db)
	ranked(w, bold, "SESSION LINES BY LEVEL", "Level", analyzer.Ranked(b.ByLevel))
	ranked(w, bold, "SESSION LINES BY EVENT", "Event", analyzer.Ranked(b.ByEvent))
	ranked(w, bold, "SESSIONS BY CONTAINER", "Container", analyzer.Ranked(b.ByContainer))
	ranked(w, bold, "SESSIONS BY SOURCE FILE", "Source", analyzer.Ranked(b.BySource))

	fmt.Fprintln(w)
	bold.Fprintf(w, "  FIRST %d SESSIONS\n", min(topSessions, db.Len()))

	st := table.NewWriter()
	st.SetOutputMirror(w)
	st.SetStyle(table.StyleLight)
	st.AppendHeader(table.Row{"ID", "Key", "Level", "Event", "Count", "Source"})

	shown := 0
	db.Each(func(info *session.Info) bool {
		st.AppendRow(table.Row{info.ID, info.Key, info.Level, info.Event, humanize.Comma(int64(info.Count)), info.Source})
		shown++
		return shown < topSessions
	})
	if db.Len() > shown {
		st.AppendFooter(table.Row{"", fmt.Sprintf("... %d more", db.Len()-shown)})
	}
	st.Render()
	fmt.Fprintln(w)

	return nil
}

func ranked(w io.Writer, bold *color.Color, title, column string, rows []analyzer.Count) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "  %s\n", title)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{column, "Count"})
	for i, r := range rows {
		if i == topSessions {
			tw.AppendFooter(table.Row{"", fmt.Sprintf("... %d more", len(rows)-i)})
			break
		}
		tw.AppendRow(table.Row{r.Key, humanize.Comma(int64(r.Value))})
	}
	tw.Render()
}

// statsFile mirrors the run statistics for the YAML stats file.
type statsFile struct {
	RunID        string  `yaml:"run_id"`
	Dir          string  `yaml:"dir"`
	Term         string  `yaml:"term"`
	Output       string  `yaml:"output,omitempty"`
	Format       string  `yaml:"format"`
	FilesScanned int     `yaml:"files_scanned"`
	FilesFailed  int     `yaml:"files_failed"`
	FilesSkipped int     `yaml:"files_skipped"`
	TotalFound   int     `yaml:"total_found"`
	Matches      int     `yaml:"session_lines"`
	Sessions     int     `yaml:"sessions"`
	ElapsedMS    int64   `yaml:"elapsed_ms"`
	ElapsedSec   float64 `yaml:"elapsed_seconds"`
	Completed    bool    `yaml:"completed"`
}

// WriteStats encodes the run statistics as YAML.
func WriteStats(s searcher.Stats, w io.Writer) error {
	doc := statsFile{
		RunID:        s.RunID,
		Dir:          s.Dir,
		Term:         s.Term,
		Output:       s.Output,
		Format:       string(s.Format),
		FilesScanned: s.FilesScanned,
		FilesFailed:  s.FilesFailed,
		FilesSkipped: s.FilesSkipped,
		TotalFound:   s.TotalFound,
		Matches:      s.Matches,
		Sessions:     s.Sessions,
		ElapsedMS:    s.Elapsed.Milliseconds(),
		ElapsedSec:   s.Elapsed.Seconds(),
		Completed:    s.Completed,
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	return enc.Close()
}

// WriteStatsFile writes the YAML statistics to path.
func WriteStatsFile(s searcher.Stats, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating stats file: %w", err)
	}
	defer f.Close()

	if err := WriteStats(s, f); err != nil {
		return err
	}
	return f.Close()
}

// LogMemory logs the heap figures after a run. It is meant as a
// searcher.WithAfterRun hook.
func LogMemory(log zerolog.Logger) func(searcher.Stats) {
	return func(searcher.Stats) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		log.Info().
			Str("heap_alloc", humanize.IBytes(m.HeapAlloc)).
			Str("heap_sys", humanize.IBytes(m.HeapSys)).
			Str("total_alloc", humanize.IBytes(m.TotalAlloc)).
			Uint32("gc_cycles", m.NumGC).
			Msg("memory after operation")
	}
}
