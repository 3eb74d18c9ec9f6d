// Package session holds the aggregated session records of a run.
package session

import (
	"github.com/chinab/octane-crawler/parsers"
)

// Info describes one distinct session observed across any number of lines.
type Info struct {
	Key       string
	ID        int // identifier of the match that created the entry
	Container string
	Thread    string
	Timestamp string
	Level     string
	Event     string
	Source    string // file the key was first seen in
	Count     int
}

func newInfo(key string, id int, m parsers.Match, source string) *Info {
	return &Info{
		Key:       key,
		ID:        id,
		Container: m.Container,
		Thread:    m.Thread,
		Timestamp: m.Timestamp,
		Level:     m.Level,
		Event:     m.Event,
		Source:    source,
		Count:     1,
	}
}

// Database maps session keys to their Info in first-insertion order.
// It is not safe for concurrent use.
type Database struct {
	keys  []string
	byKey map[string]*Info
}

// NewDatabase returns an empty Database.
func NewDatabase() *Database {
	return &Database{byKey: make(map[string]*Info)}
}

// Observe records one match for key. A new key is appended with the given
// identifier; a known key has its count incremented. The returned bool
// reports whether an entry was created.
func (d *Database) Observe(key string, id int, m parsers.Match, source string) (*Info, bool) {
	if info, ok := d.byKey[key]; ok {
		info.Count++
		return info, false
	}

	info := newInfo(key, id, m, source)
	d.insert(info)
	return info, true
}

func (d *Database) insert(info *Info) {
	d.keys = append(d.keys, info.Key)
	d.byKey[info.Key] = info
}

// Get returns the entry for key.
func (d *Database) Get(key string) (*Info, bool) {
	info, ok := d.byKey[key]
	return info, ok
}

// Len returns the number of distinct sessions.
func (d *Database) Len() int {
	return len(d.keys)
}

// Entries returns the entries in insertion order.
func (d *Database) Entries() []*Info {
	out := make([]*Info, len(d.keys))
	for i, k := range d.keys {
		out[i] = d.byKey[k]
	}
	return out
}

// Each calls fn for every entry in insertion order until fn returns false.
func (d *Database) Each(fn func(*Info) bool) {
	for _, k := range d.keys {
		if !fn(d.byKey[k]) {
			return
		}
	}
}
