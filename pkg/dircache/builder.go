package dircache

import (
	"fmt"
)

// Builder assembles a replacement entry set for a DirCache. Entries must be
// appended in strictly increasing (path, stage) order, which a tree walk
// guarantees. Finish installs the new set into the owning cache.
type Builder struct {
	dc      *DirCache
	entries []*Entry
}

// Builder returns a new append-only builder for d.
func (d *DirCache) Builder() *Builder {
	return &Builder{dc: d}
}

// Add appends e. The entry is rejected when it breaks index ordering or
// duplicates a (path, stage) pair.
func (b *Builder) Add(e *Entry) error {
	if e.Path == "" {
		return fmt.Errorf("index add: empty path")
	}
	if e.Stage < StageMerged || e.Stage > StageTheirs {
		return fmt.Errorf("index add %q: invalid stage %d", e.Path, e.Stage)
	}
	if n := len(b.entries); n > 0 {
		last := b.entries[n-1]
		switch c := ComparePaths(last.Path, e.Path); {
		case c > 0:
			return fmt.Errorf("index add %q: out of order after %q", e.Path, last.Path)
		case c == 0 && e.Stage <= last.Stage:
			return fmt.Errorf("index add %q: stage %d not above %d", e.Path, e.Stage, last.Stage)
		}
	}
	b.entries = append(b.entries, e)
	return nil
}

// Keep appends a copy of an existing entry, preserving stage, mode, hash
// and stat data. It returns the copy.
func (b *Builder) Keep(e *Entry) (*Entry, error) {
	c := e.Clone()
	if err := b.Add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Finish installs the built entries into the owning DirCache. The cache is
// not persisted; use DirCache.Commit for that.
func (b *Builder) Finish() {
	b.dc.entries = b.entries
}
