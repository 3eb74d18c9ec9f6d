package analyzer

import (
	"sort"

	"github.com/chinab/octane-crawler/session"
)

// Breakdown aggregates a session database for reporting.
type Breakdown struct {
	ByLevel     map[string]int // level -> session lines
	ByEvent     map[string]int // event -> session lines
	ByContainer map[string]int // container -> distinct sessions
	BySource    map[string]int // file -> sessions first seen there
}

// Count is one row of a ranked breakdown.
type Count struct {
	Key   string
	Value int
}

// Analyze walks the database once and tallies its sessions.
func Analyze(db *session.Database) Breakdown {
	b := Breakdown{
		ByLevel:     make(map[string]int),
		ByEvent:     make(map[string]int),
		ByContainer: make(map[string]int),
		BySource:    make(map[string]int),
	}

	db.Each(func(info *session.Info) bool {
		b.ByLevel[label(info.Level)] += info.Count
		b.ByEvent[label(info.Event)] += info.Count
		b.ByContainer[label(info.Container)]++
		b.BySource[info.Source]++
		return true
	})

	return b
}

// Ranked returns m sorted by descending value, ties broken by key so the
// order is stable across runs.
func Ranked(m map[string]int) []Count {
	sorted := make([]Count, 0, len(m))
	for k, v := range m {
		sorted = append(sorted, Count{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].Key < sorted[j].Key
	})
	return sorted
}

func label(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
