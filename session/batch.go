package session

import (
	"github.com/chinab/octane-crawler/parsers"
)

// Batch stages the observations of one file against a Database. Nothing
// reaches the database until Apply, so a file that fails half way through
// can be dropped without leaving partial entries behind.
type Batch struct {
	db      *Database
	added   []*Info
	byKey   map[string]*Info
	updates map[string]int
}

// NewBatch returns an empty batch backed by d.
func (d *Database) NewBatch() *Batch {
	return &Batch{
		db:      d,
		byKey:   make(map[string]*Info),
		updates: make(map[string]int),
	}
}

// Observe behaves like Database.Observe but stages the change. It reports
// whether the key is new to both the database and the batch.
func (b *Batch) Observe(key string, id int, m parsers.Match, source string) bool {
	if _, ok := b.db.byKey[key]; ok {
		b.updates[key]++
		return false
	}
	if info, ok := b.byKey[key]; ok {
		info.Count++
		return false
	}

	info := newInfo(key, id, m, source)
	b.added = append(b.added, info)
	b.byKey[key] = info
	return true
}

// Added returns the number of new sessions staged.
func (b *Batch) Added() int {
	return len(b.added)
}

// Apply commits the batch to d: count increments first, then new entries in
// the order they were first observed. Apply panics if the batch was built
// against another database.
func (d *Database) Apply(b *Batch) {
	if b.db != d {
		panic("session: batch applied to a foreign database")
	}

	for key, n := range b.updates {
		d.byKey[key].Count += n
	}
	for _, info := range b.added {
		d.insert(info)
	}

	b.added = nil
	b.byKey = make(map[string]*Info)
	b.updates = make(map[string]int)
}
