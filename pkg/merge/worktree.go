package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/diff3"
	"github.com/cruxvc/crux/pkg/object"
)

// writeMergedFile renders the merge result with the configured labels and
// writes it out. With a working tree the target file is written in place.
// Without one, a clean result goes to a temporary file whose bytes the
// caller hashes into the store; a conflicted result is not written at all
// and the empty path is returned.
func (m *Merger) writeMergedFile(path string, result *diff3.Result, mergedMode object.FileMode) (string, error) {
	content := diff3.Format(*result, m.labels[1], m.labels[2])
	if mergedMode == object.ModeMissing {
		mergedMode = object.ModeFile
	}

	if m.bare() {
		if result.HasConflicts {
			return "", nil
		}
		tmp, err := os.CreateTemp("", "crux-merge-*")
		if err != nil {
			return "", fmt.Errorf("merged file tmpfile: %w", err)
		}
		name := tmp.Name()
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			os.Remove(name)
			return "", fmt.Errorf("write merged file %q: %w", path, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(name)
			return "", fmt.Errorf("close merged file %q: %w", path, err)
		}
		return name, nil
	}

	abs := filepath.Join(m.work.Root(), filepath.FromSlash(path))
	if err := m.createDir(filepath.Dir(abs)); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, content, mergedMode.Perm()); err != nil {
		return "", fmt.Errorf("write merged file %q: %w", path, err)
	}
	return abs, nil
}

// createDir ensures dir exists. A non-directory at dir itself is removed
// first; a non-directory higher up the parent chain makes the call fail.
func (m *Merger) createDir(dir string) error {
	info, err := os.Lstat(dir)
	if err == nil && info.IsDir() {
		return nil
	}
	if err == nil {
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("replace non-directory %q: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// checkout materialises every scheduled entry into the working tree, then
// replays the scheduled deletions in reverse order so files go before
// their directories. Deletion failures are recorded, not fatal.
func (m *Merger) checkout() error {
	for _, path := range m.checkoutOrder {
		if err := m.checkoutEntry(path, m.checkoutMap[path]); err != nil {
			return err
		}
		m.modifiedFiles = append(m.modifiedFiles, path)
	}

	for i := len(m.toBeDeleted) - 1; i >= 0; i-- {
		path := m.toBeDeleted[i]
		abs := filepath.Join(m.work.Root(), filepath.FromSlash(path))
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.failingPaths[path] = CouldNotDelete
			continue
		}
		m.modifiedFiles = append(m.modifiedFiles, path)
	}
	return nil
}

// checkoutEntry writes one index entry's content at its path.
func (m *Merger) checkoutEntry(path string, e *dircache.Entry) error {
	blob, err := m.store.ReadBlob(e.Hash)
	if err != nil {
		return fmt.Errorf("checkout %q: %w", path, err)
	}
	abs := filepath.Join(m.work.Root(), filepath.FromSlash(path))
	if err := m.createDir(filepath.Dir(abs)); err != nil {
		return err
	}
	if e.Mode.IsSymlink() {
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checkout %q: %w", path, err)
		}
		if err := os.Symlink(string(blob.Data), abs); err != nil {
			return fmt.Errorf("checkout %q: %w", path, err)
		}
		return nil
	}
	if err := os.WriteFile(abs, blob.Data, e.Mode.Perm()); err != nil {
		return fmt.Errorf("checkout %q: %w", path, err)
	}
	return nil
}

// cleanUp reverts every file this merge touched back to the content the
// current index records for it. In-core merges only forget the touched
// set.
func (m *Merger) cleanUp() error {
	if m.bare() {
		m.modifiedFiles = nil
		return nil
	}

	// Restore from the index on disk, not the in-memory view, which may
	// already hold the discarded build.
	idx := m.dc
	if dir := m.dc.Dir(); dir != "" {
		fresh, err := dircache.Load(dir)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		idx = fresh
	}

	for len(m.modifiedFiles) > 0 {
		path := m.modifiedFiles[0]
		if e := idx.Entry(path); e != nil {
			if err := m.checkoutEntry(path, e); err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
		}
		m.modifiedFiles = m.modifiedFiles[1:]
	}
	return nil
}
