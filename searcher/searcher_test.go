package searcher

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinab/octane-crawler/config"
	"github.com/chinab/octane-crawler/logging"
	"github.com/chinab/octane-crawler/parsers"
)

const (
	loginLine  = "0000003a [WebContainer : 7] [2024-01-01T00:00:00] ERROR] LOGIN user=alice"
	logoutLine = "0000003a [WebContainer : 8] [2024-01-01T00:01:00] INFO ] LOGOUT user=bob"
)

func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

// testConfig scans dir and writes the report next to it, outside dir.
func testConfig(t *testing.T, dir, term string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Search.Dir = dir
	cfg.Search.Term = term
	cfg.Output.File = filepath.Join(t.TempDir(), "report.xml")
	return cfg
}

func run(t *testing.T, cfg *config.Config, opts ...Option) *Searcher {
	t.Helper()

	s, err := New(cfg, logging.Nop(), opts...)
	require.NoError(t, err)
	assert.Equal(t, Idle, s.State())

	require.NoError(t, s.Search())
	assert.Equal(t, Closed, s.State())
	return s
}

func readReport(t *testing.T, cfg *config.Config) string {
	t.Helper()

	raw, err := os.ReadFile(cfg.Output.File)
	require.NoError(t, err)
	return string(raw)
}

func requireWellFormed(t *testing.T, doc string) {
	t.Helper()

	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = true
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
	}
}

func TestSearchScenarioTwoLogins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "SystemOut.log", loginLine, "noise", loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	s := run(t, cfg)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.FilesScanned)
	assert.True(t, stats.Completed)
	assert.NotEmpty(t, stats.RunID)

	require.Equal(t, 1, s.Database().Len())
	assert.Equal(t, 2, s.Database().Entries()[0].Count)

	doc := readReport(t, cfg)
	requireWellFormed(t, doc)
	assert.Equal(t, 1, strings.Count(doc, "<properties>"))
	assert.Equal(t, 1, strings.Count(doc, "</properties>"))
	assert.Equal(t, 1, strings.Count(doc, "<entry "))
	assert.Contains(t, doc, `<entry key="WebContainer.7.2024-01-01T00:00">id=0 count=2 level=ERROR event=LOGIN source=SystemOut.log</entry>`)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8" ?>`+"\n"+
		`<!DOCTYPE properties SYSTEM "http://java.sun.com/dtd/properties.dtd">`+"\n<properties>\n"))
}

func TestSearchManyFilesOneEnvelope(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.log", loginLine, logoutLine)
	writeFile(t, dir, "b.log", loginLine, "LOGIN without session")
	writeFile(t, dir, "c.log", logoutLine, logoutLine, loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	s := run(t, cfg)

	// The run total is the sum of the per-file tallies.
	sum := 0
	for _, r := range s.Results() {
		sum += r.Found
	}
	assert.Equal(t, sum, s.Stats().TotalFound)
	assert.Equal(t, 4, s.Stats().TotalFound)
	assert.Equal(t, 3, s.Stats().FilesScanned)
	assert.Equal(t, 6, s.Stats().Matches)

	// Identifiers continue across files.
	results := s.Results()
	require.Len(t, results, 3)
	assert.Equal(t, 2, results[0].NextID)
	assert.Equal(t, 3, results[1].NextID)
	assert.Equal(t, 6, results[2].NextID)

	// Keys in first-seen order, ids unique.
	entries := s.Database().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "WebContainer.7.2024-01-01T00:00", entries[0].Key)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, "WebContainer.8.2024-01-01T00:01", entries[1].Key)
	assert.Equal(t, 3, entries[1].Count)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	doc := readReport(t, cfg)
	requireWellFormed(t, doc)
	assert.Equal(t, 1, strings.Count(doc, "<properties>"))
	assert.Equal(t, 2, strings.Count(doc, "<entry "), "one dump, not one per file")
}

func TestSearchEmptyDirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, t.TempDir(), "LOGIN")
	s := run(t, cfg)

	assert.Zero(t, s.Stats().TotalFound)
	assert.Zero(t, s.Stats().FilesScanned)
	assert.True(t, s.Stats().Completed)

	doc := readReport(t, cfg)
	requireWellFormed(t, doc)
	assert.True(t, strings.HasSuffix(doc, "<properties>\n</properties>\n"))
}

func TestSearchOnlySubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "deep.log", loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	s := run(t, cfg)

	assert.Zero(t, s.Stats().TotalFound)
	assert.Zero(t, s.Database().Len())
	assert.True(t, strings.HasSuffix(readReport(t, cfg), "<properties>\n</properties>\n"))
}

func TestSearchTargetIsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app.log", loginLine)

	cfg := testConfig(t, filepath.Join(dir, "app.log"), "LOGIN")
	s := run(t, cfg)

	assert.Zero(t, s.Stats().TotalFound)
	assert.Zero(t, s.Database().Len())
	assert.False(t, s.Stats().Completed)
	assert.Empty(t, readReport(t, cfg), "output opened and closed, nothing written")
}

func TestSearchMissingDirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, filepath.Join(t.TempDir(), "nope"), "LOGIN")
	s := run(t, cfg)
	assert.Zero(t, s.Stats().FilesScanned)
}

func TestSearchEmptyTerm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app.log", loginLine)

	cfg := testConfig(t, dir, "")
	s := run(t, cfg)

	assert.Zero(t, s.Stats().TotalFound)
	assert.Zero(t, s.Database().Len())
	assert.Empty(t, readReport(t, cfg))
}

func TestSearchOutputDisabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app.log", loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	cfg.Output.Enabled = false
	s := run(t, cfg)

	assert.Equal(t, 1, s.Stats().TotalFound)
	assert.Empty(t, s.Stats().Output)
	_, err := os.Stat(cfg.Output.File)
	assert.True(t, os.IsNotExist(err))
}

func TestSearchOutputOpenFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app.log", loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	cfg.Output.File = filepath.Join(t.TempDir(), "missing", "report.xml")

	s, err := New(cfg, logging.Nop())
	require.NoError(t, err)

	err = s.Search()
	require.ErrorIs(t, err, ErrOutputOpen)
	assert.Equal(t, Closed, s.State())
	assert.Zero(t, s.Stats().FilesScanned, "no file is scanned after a fatal open error")
}

func TestSearchSkipsUnreadableAndOwnOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.log", loginLine)
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.log"), filepath.Join(dir, "b.log")))
	writeFile(t, dir, "c.log", loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	cfg.Output.File = filepath.Join(dir, "report.xml")
	s := run(t, cfg)

	stats := s.Stats()
	assert.Equal(t, 2, stats.FilesScanned)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 2, s.Database().Entries()[0].Count)
}

func TestSearchIncludeFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "SystemOut.log", loginLine)
	writeFile(t, dir, "SystemErr.txt", loginLine)
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling.txt")))

	cfg := testConfig(t, dir, "LOGIN")
	cfg.Search.Include = "*.log"
	s := run(t, cfg)

	assert.Equal(t, 1, s.Stats().FilesScanned)
	assert.Equal(t, 0, s.Stats().FilesFailed)
	assert.Equal(t, 2, s.Stats().FilesSkipped)
	assert.Equal(t, 1, s.Stats().TotalFound)
}

func TestSearchPlainFormatWithNotes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app.log", loginLine, loginLine)

	cfg := testConfig(t, dir, "LOGIN")
	cfg.Output.Format = "plain"
	cfg.Output.Immediate = true
	run(t, cfg)

	assert.Equal(t,
		"# 0 app.log:1 WebContainer.7.2024-01-01T00:00 ERROR LOGIN\n"+
			"# 1 app.log:2 WebContainer.7.2024-01-01T00:00 ERROR LOGIN\n"+
			"WebContainer.7.2024-01-01T00:00=id=0 count=2 level=ERROR event=LOGIN source=app.log\n",
		readReport(t, cfg))
}

func TestSearchOptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app.log", loginLine, logoutLine)

	var hooked *Stats
	cfg := testConfig(t, dir, "LOG")
	s := run(t, cfg,
		WithKeyFunc(func(parsers.Match) string { return "all" }),
		WithAfterRun(func(st Stats) { hooked = &st }),
	)

	assert.Equal(t, 1, s.Database().Len())
	assert.Equal(t, 2, s.Database().Entries()[0].Count)
	require.NotNil(t, hooked)
	assert.Equal(t, 2, hooked.TotalFound)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Output.Format = "pdf"
	_, err := New(cfg, logging.Nop())
	require.Error(t, err)

	cfg = config.Default()
	cfg.Session.KeyFields = []string{"host"}
	_, err = New(cfg, logging.Nop())
	require.ErrorIs(t, err, parsers.ErrUnknownField)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "output-opened", OutputOpened.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "finalizing", Finalizing.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
