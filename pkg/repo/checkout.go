package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
)

// Checkout switches the working directory to the state of the target,
// which can be a branch name or a raw commit hash.
//
// Algorithm:
//  1. Refuse when the index has conflicts or tracked files are modified.
//  2. Resolve target: branch name first, then raw hash.
//  3. Reset the working tree and index to the target commit's tree.
//  4. Update HEAD (symbolic ref for a branch, raw hash for detached).
func (r *Repo) Checkout(target string) error {
	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	isBranch := false
	var targetHash object.Hash

	branchHash, err := r.ResolveRef("refs/heads/" + target)
	if err == nil {
		targetHash = branchHash
		isBranch = true
	} else {
		targetHash = object.Hash(target)
	}

	commit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: cannot read commit %s: %w", targetHash, err)
	}

	if err := r.resetToTree(commit.TreeHash); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	headPath := filepath.Join(r.CruxDir, "HEAD")
	var headContent string
	if isBranch {
		headContent = "ref: refs/heads/" + target + "\n"
	} else {
		headContent = string(targetHash) + "\n"
	}
	if err := os.WriteFile(headPath, []byte(headContent), 0o644); err != nil {
		return fmt.Errorf("checkout: update HEAD: %w", err)
	}

	return nil
}

// resetToTree replaces the working tree and index with the content of the
// given tree: tracked files are removed, the tree's files written out, and
// the index rebuilt to match.
func (r *Repo) resetToTree(tree object.Hash) error {
	targetFiles, err := r.FlattenTree(tree)
	if err != nil {
		return fmt.Errorf("flatten target tree: %w", err)
	}

	dc, err := dircache.Load(r.CruxDir)
	if err != nil {
		return err
	}
	for _, e := range dc.Entries() {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(e.Path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", e.Path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	if err := dc.Lock(); err != nil {
		return err
	}
	b := dc.Builder()

	sorted := make([]TreeFileEntry, len(targetFiles))
	copy(sorted, targetFiles)
	sort.Slice(sorted, func(i, j int) bool {
		return dircache.ComparePaths(sorted[i].Path, sorted[j].Path) < 0
	})

	for _, f := range sorted {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			dc.Unlock()
			return fmt.Errorf("mkdir %q: %w", filepath.Dir(absPath), err)
		}

		blob, err := r.Store.ReadBlob(f.Hash)
		if err != nil {
			dc.Unlock()
			return fmt.Errorf("read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, f.Mode.Perm()); err != nil {
			dc.Unlock()
			return fmt.Errorf("write %q: %w", f.Path, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			dc.Unlock()
			return fmt.Errorf("stat %q: %w", f.Path, err)
		}
		entry := &dircache.Entry{
			Path:    f.Path,
			Stage:   dircache.StageMerged,
			Mode:    f.Mode,
			Hash:    f.Hash,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		}
		if err := b.Add(entry); err != nil {
			dc.Unlock()
			return err
		}
	}
	b.Finish()
	return dc.Commit()
}

// ensureClean checks that the index has no conflicts and every tracked
// file on disk matches its staged content.
func (r *Repo) ensureClean() error {
	dc, err := dircache.Load(r.CruxDir)
	if err != nil {
		return err
	}
	if dc.HasUnmerged() {
		return fmt.Errorf("working tree is not clean (unresolved conflicts in index)")
	}
	for _, e := range dc.Entries() {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(e.Path))
		data, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("working tree is not clean (file %q deleted)", e.Path)
			}
			return fmt.Errorf("check clean: read %q: %w", e.Path, err)
		}
		if object.HashObject(object.TypeBlob, data) != e.Hash {
			return fmt.Errorf("working tree is not clean (file %q has uncommitted changes)", e.Path)
		}
	}
	return nil
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
