package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
)

// Add stages the given repo-relative file paths. For each file the raw
// content is written as a blob and a stage-0 entry is recorded, replacing
// any previous entry (including conflict stages) for that path.
func (r *Repo) Add(paths []string) error {
	dc, err := dircache.Load(r.CruxDir)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if err := dc.Lock(); err != nil {
		return fmt.Errorf("add: %w", err)
	}

	updated := make(map[string]*dircache.Entry)
	for _, p := range paths {
		rel := filepath.ToSlash(filepath.Clean(p))
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))

		content, err := os.ReadFile(absPath)
		if err != nil {
			dc.Unlock()
			return fmt.Errorf("add: read %q: %w", rel, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			dc.Unlock()
			return fmt.Errorf("add: stat %q: %w", rel, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			dc.Unlock()
			return fmt.Errorf("add: write blob %q: %w", rel, err)
		}

		updated[rel] = &dircache.Entry{
			Path:    rel,
			Stage:   dircache.StageMerged,
			Mode:    object.ModeFromFileInfo(info),
			Hash:    blobHash,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		}
	}

	// Merge the updates into the existing entry set, dropping every stale
	// stage of an updated path.
	var next []*dircache.Entry
	for _, e := range dc.Entries() {
		if _, replaced := updated[e.Path]; !replaced {
			next = append(next, e)
		}
	}
	for _, e := range updated {
		next = append(next, e)
	}
	sort.Slice(next, func(i, j int) bool {
		if c := dircache.ComparePaths(next[i].Path, next[j].Path); c != 0 {
			return c < 0
		}
		return next[i].Stage < next[j].Stage
	})

	b := dc.Builder()
	for _, e := range next {
		if err := b.Add(e); err != nil {
			dc.Unlock()
			return fmt.Errorf("add: %w", err)
		}
	}
	b.Finish()

	if err := dc.Commit(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}
