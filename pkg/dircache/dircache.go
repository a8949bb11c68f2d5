// Package dircache implements the staged index: the ordered list of entries
// that mediates between trees, the working directory, and new commits.
package dircache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruxvc/crux/pkg/object"
)

// Merge stages. Stage 0 is a fully merged entry; stages 1/2/3 record the
// base/ours/theirs sides of an unresolved conflict.
const (
	StageMerged = 0
	StageBase   = 1
	StageOurs   = 2
	StageTheirs = 3
)

// ErrLocked is returned when the index lock is already held.
var ErrLocked = errors.New("index is locked")

// Entry records the staged state of a single path at one stage.
type Entry struct {
	Path    string          `json:"path"`
	Stage   int             `json:"stage"`
	Mode    object.FileMode `json:"mode"`
	Hash    object.Hash     `json:"hash"`
	ModTime int64           `json:"mod_time"`
	Size    int64           `json:"size"`
}

// Clone returns a copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// DirCache holds the full index for a repository: entries sorted by
// (path, stage) using segment-wise path ordering. A DirCache constructed
// with NewInCore never touches the filesystem.
type DirCache struct {
	dir     string // metadata directory (.crux); empty for in-core caches
	entries []*Entry
	locked  bool
}

// NewInCore returns an empty index with no backing file.
func NewInCore() *DirCache {
	return &DirCache{}
}

// Load reads the index from dir (the repository metadata directory). A
// missing index file yields an empty cache.
func Load(dir string) (*DirCache, error) {
	d := &DirCache{dir: dir}
	if err := d.read(); err != nil {
		return nil, err
	}
	return d, nil
}

// Dir returns the metadata directory backing this cache; empty for
// in-core caches.
func (d *DirCache) Dir() string { return d.dir }

func (d *DirCache) indexPath() string { return filepath.Join(d.dir, "index") }
func (d *DirCache) lockPath() string  { return filepath.Join(d.dir, "index.lock") }

func (d *DirCache) read() error {
	data, err := os.ReadFile(d.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.entries = nil
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("read index: unmarshal: %w", err)
	}
	d.entries = entries
	return nil
}

// Lock acquires the exclusive index lock and re-reads the index so the
// locked view is current. Callers must pair with Unlock or Commit.
func (d *DirCache) Lock() error {
	if d.dir == "" {
		d.locked = true
		return nil
	}
	f, err := os.OpenFile(d.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("lock index: %w", ErrLocked)
		}
		return fmt.Errorf("lock index: %w", err)
	}
	f.Close()
	d.locked = true
	return d.read()
}

// Locked reports whether this cache holds the index lock.
func (d *DirCache) Locked() bool { return d.locked }

// Unlock releases the index lock without persisting.
func (d *DirCache) Unlock() error {
	if !d.locked {
		return nil
	}
	d.locked = false
	if d.dir == "" {
		return nil
	}
	if err := os.Remove(d.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unlock index: %w", err)
	}
	return nil
}

// Commit atomically persists the current entries and releases the lock.
func (d *DirCache) Commit() error {
	if d.dir == "" {
		d.locked = false
		return nil
	}
	if !d.locked {
		return fmt.Errorf("commit index: lock not held")
	}

	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("commit index: marshal: %w", err)
	}

	// Atomic write via temp file + rename.
	tmp, err := os.CreateTemp(d.dir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("commit index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("commit index: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit index: close: %w", err)
	}
	if err := os.Rename(tmpName, d.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit index: rename: %w", err)
	}

	return d.Unlock()
}

// Entries returns the live entry slice in index order.
func (d *DirCache) Entries() []*Entry { return d.entries }

// Entry returns the stage-0 entry for path, or nil.
func (d *DirCache) Entry(path string) *Entry {
	for _, e := range d.EntriesAt(path) {
		if e.Stage == StageMerged {
			return e
		}
	}
	return nil
}

// EntriesAt returns all entries recorded for path, in stage order.
func (d *DirCache) EntriesAt(path string) []*Entry {
	var out []*Entry
	for _, e := range d.entries {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}

// HasUnmerged reports whether any entry sits at a conflict stage.
func (d *DirCache) HasUnmerged() bool {
	for _, e := range d.entries {
		if e.Stage != StageMerged {
			return true
		}
	}
	return false
}

// ComparePaths orders repository paths the way a pre-order tree walk emits
// them: segment by segment, so "a/b" sorts before "a.txt" even though a
// plain string compare says otherwise.
func ComparePaths(a, b string) int {
	for {
		ai := strings.IndexByte(a, '/')
		bi := strings.IndexByte(b, '/')
		as, bs := a, b
		if ai >= 0 {
			as = a[:ai]
		}
		if bi >= 0 {
			bs = b[:bi]
		}
		if as != bs {
			if as < bs {
				return -1
			}
			return 1
		}
		switch {
		case ai < 0 && bi < 0:
			return 0
		case ai < 0:
			return -1
		case bi < 0:
			return 1
		}
		a, b = a[ai+1:], b[bi+1:]
	}
}
