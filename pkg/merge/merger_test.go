package merge

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
	"github.com/cruxvc/crux/pkg/treewalk"
)

// fileSpec describes one file in a fixture tree.
type fileSpec struct {
	data string
	mode object.FileMode
}

func regular(data string) fileSpec {
	return fileSpec{data: data, mode: object.ModeFile}
}

// makeTree writes the given files as blobs and a tree hierarchy, returning
// the root tree hash.
func makeTree(t *testing.T, store *object.Store, files map[string]fileSpec) object.Hash {
	t.Helper()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		return dircache.ComparePaths(paths[i], paths[j]) < 0
	})

	dc := dircache.NewInCore()
	b := dc.Builder()
	for _, p := range paths {
		f := files[p]
		blobHash, err := store.WriteBlob(&object.Blob{Data: []byte(f.data)})
		if err != nil {
			t.Fatalf("WriteBlob %q: %v", p, err)
		}
		mode := f.mode
		if mode == object.ModeMissing {
			mode = object.ModeFile
		}
		if err := b.Add(&dircache.Entry{Path: p, Stage: dircache.StageMerged, Mode: mode, Hash: blobHash}); err != nil {
			t.Fatalf("builder add %q: %v", p, err)
		}
	}
	b.Finish()

	h, err := dc.WriteTree(store)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	return h
}

// setupWorkMerge builds an on-disk repository skeleton whose index and
// working tree both match the ours tree.
func setupWorkMerge(t *testing.T, ours map[string]fileSpec) (*object.Store, string, string) {
	t.Helper()

	root := t.TempDir()
	metaDir := filepath.Join(root, ".crux")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		t.Fatalf("mkdir meta: %v", err)
	}
	store := object.NewStore(metaDir)

	paths := make([]string, 0, len(ours))
	for p := range ours {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		return dircache.ComparePaths(paths[i], paths[j]) < 0
	})

	dc, err := dircache.Load(metaDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := dc.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	b := dc.Builder()
	for _, p := range paths {
		f := ours[p]
		mode := f.mode
		if mode == object.ModeMissing {
			mode = object.ModeFile
		}

		abs := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir %q: %v", p, err)
		}
		if err := os.WriteFile(abs, []byte(f.data), mode.Perm()); err != nil {
			t.Fatalf("write %q: %v", p, err)
		}

		blobHash, err := store.WriteBlob(&object.Blob{Data: []byte(f.data)})
		if err != nil {
			t.Fatalf("WriteBlob %q: %v", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			t.Fatalf("stat %q: %v", p, err)
		}
		entry := &dircache.Entry{
			Path:    p,
			Stage:   dircache.StageMerged,
			Mode:    mode,
			Hash:    blobHash,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		}
		if err := b.Add(entry); err != nil {
			t.Fatalf("builder add %q: %v", p, err)
		}
	}
	b.Finish()
	if err := dc.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	return store, metaDir, root
}

func workMerger(store *object.Store, metaDir, root string) *Merger {
	m := NewMerger(store, metaDir, false)
	m.SetWorkTree(treewalk.NewWorkTreeSource(root, ".crux"))
	return m
}

func blobHash(t *testing.T, data string) object.Hash {
	t.Helper()
	return object.HashObject(object.TypeBlob, []byte(data))
}

func stagesOf(entries []*dircache.Entry) []int {
	var stages []int
	for _, e := range entries {
		stages = append(stages, e.Stage)
	}
	return stages
}

// ---------------------------------------------------------------------------
// Round-trip laws
// ---------------------------------------------------------------------------

func TestMerge_Identity(t *testing.T) {
	store := object.NewStore(t.TempDir())
	tree := makeTree(t, store, map[string]fileSpec{
		"a.txt":   regular("alpha\n"),
		"dir/b":   regular("beta\n"),
		"dir/c.x": regular("gamma\n"),
	})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(tree, tree, tree)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v failing=%v", m.UnmergedPaths(), m.FailingPaths())
	}
	if m.ResultTree() != tree {
		t.Errorf("result tree = %s, want %s", m.ResultTree(), tree)
	}
	if len(m.ToBeCheckedOut()) != 0 {
		t.Errorf("unexpected checkouts: %v", m.ToBeCheckedOut())
	}
	if len(m.MergeResults()) != 0 {
		t.Errorf("unexpected merge results: %v", m.MergeResults())
	}
}

func TestMerge_OneSidedChange(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a.txt": regular("old\n")})
	theirs := makeTree(t, store, map[string]fileSpec{"a.txt": regular("new\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, base, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v", m.UnmergedPaths())
	}
	if m.ResultTree() != theirs {
		t.Errorf("result tree = %s, want theirs %s", m.ResultTree(), theirs)
	}
	if _, scheduled := m.ToBeCheckedOut()["a.txt"]; !scheduled {
		t.Errorf("a.txt not scheduled for checkout: %v", m.ToBeCheckedOut())
	}
}

func TestMerge_SymmetricChange(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a.txt": regular("old\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a.txt": regular("new\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, ours, base)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v", m.UnmergedPaths())
	}
	if m.ResultTree() != ours {
		t.Errorf("result tree = %s, want ours %s", m.ResultTree(), ours)
	}
	if len(m.ToBeCheckedOut()) != 0 {
		t.Errorf("unexpected checkouts: %v", m.ToBeCheckedOut())
	}
}

func TestMerge_BothSidesSameChange(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a.txt": regular("old\n")})
	changed := makeTree(t, store, map[string]fileSpec{"a.txt": regular("new\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, changed, changed)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v", m.UnmergedPaths())
	}
	if m.ResultTree() != changed {
		t.Errorf("result tree = %s, want %s", m.ResultTree(), changed)
	}
	if len(m.MergeResults()) != 0 {
		t.Errorf("content merge ran for identical change: %v", m.MergeResults())
	}
}

// ---------------------------------------------------------------------------
// Mode handling
// ---------------------------------------------------------------------------

func TestMerge_ModeBump(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a": {data: "X\n", mode: object.ModeFile}})
	theirs := makeTree(t, store, map[string]fileSpec{"a": {data: "X\n", mode: object.ModeExecutable}})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, base, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v", m.UnmergedPaths())
	}

	e := m.dc.Entry("a")
	if e == nil {
		t.Fatalf("no stage-0 entry for a")
	}
	if e.Mode != object.ModeExecutable {
		t.Errorf("mode = %v, want %v", e.Mode, object.ModeExecutable)
	}
	if _, scheduled := m.ToBeCheckedOut()["a"]; !scheduled {
		t.Errorf("a not scheduled for checkout")
	}
	if len(m.UnmergedPaths()) != 0 {
		t.Errorf("unexpected unmerged paths: %v", m.UnmergedPaths())
	}
}

func TestMerge_ModeConflict(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a": {data: "X\n", mode: object.ModeFile}})
	ours := makeTree(t, store, map[string]fileSpec{"a": {data: "X\n", mode: object.ModeExecutable}})
	theirs := makeTree(t, store, map[string]fileSpec{"a": {data: "X\n", mode: object.ModeSymlink}})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if ok {
		t.Fatalf("expected conflicted merge")
	}

	if got := m.UnmergedPaths(); len(got) != 1 || got[0] != "a" {
		t.Errorf("unmerged = %v, want [a]", got)
	}
	result, recorded := m.MergeResults()["a"]
	if !recorded {
		t.Fatalf("no merge result recorded for a")
	}
	if result == nil || len(result.Hunks) != 0 || result.HasConflicts {
		t.Errorf("expected empty merge result, got %+v", result)
	}

	entries := m.dc.EntriesAt("a")
	if got := stagesOf(entries); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("stages = %v, want [1 2 3]", got)
	}
	if entries[0].Mode != object.ModeFile || entries[1].Mode != object.ModeExecutable || entries[2].Mode != object.ModeSymlink {
		t.Errorf("stage modes = %v %v %v", entries[0].Mode, entries[1].Mode, entries[2].Mode)
	}
	if m.Failed() {
		t.Errorf("mode conflict must not be a failure: %v", m.FailingPaths())
	}
}

// ---------------------------------------------------------------------------
// Deletions
// ---------------------------------------------------------------------------

func TestMerge_ModifyDelete(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a": regular("X\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a": regular("Y\n")})
	theirs := makeTree(t, store, map[string]fileSpec{})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if ok {
		t.Fatalf("expected conflicted merge")
	}

	if got := m.UnmergedPaths(); len(got) != 1 || got[0] != "a" {
		t.Errorf("unmerged = %v, want [a]", got)
	}
	entries := m.dc.EntriesAt("a")
	if got := stagesOf(entries); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("stages = %v, want [1 2]", got)
	}
	if _, recorded := m.MergeResults()["a"]; !recorded {
		t.Errorf("no merge result recorded for a")
	}
}

func TestMerge_DeleteDelete(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a": regular("X\n"), "keep": regular("K\n")})
	both := makeTree(t, store, map[string]fileSpec{"keep": regular("K\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, both, both)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v", m.UnmergedPaths())
	}
	if m.ResultTree() != both {
		t.Errorf("result tree = %s, want %s", m.ResultTree(), both)
	}
	if len(m.dc.EntriesAt("a")) != 0 {
		t.Errorf("deleted path still staged: %v", m.dc.EntriesAt("a"))
	}
}

// ---------------------------------------------------------------------------
// Content merges
// ---------------------------------------------------------------------------

func TestMerge_CleanContentMerge(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a": regular("A\nB\nC\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a": regular("A\nB2\nC\n")})
	theirs := makeTree(t, store, map[string]fileSpec{"a": regular("A\nB\nC2\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v failing=%v", m.UnmergedPaths(), m.FailingPaths())
	}

	e := m.dc.Entry("a")
	if e == nil {
		t.Fatalf("no stage-0 entry for a")
	}
	blob, err := store.ReadBlob(e.Hash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if got := string(blob.Data); got != "A\nB2\nC2\n" {
		t.Errorf("merged content = %q, want %q", got, "A\nB2\nC2\n")
	}
	if len(m.UnmergedPaths()) != 0 {
		t.Errorf("unexpected unmerged paths: %v", m.UnmergedPaths())
	}

	found := false
	for _, p := range m.ModifiedFiles() {
		if p == "a" {
			found = true
		}
	}
	if !found {
		t.Errorf("a missing from modified files: %v", m.ModifiedFiles())
	}
}

func TestMerge_ContentConflictStages(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"a": regular("A\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a": regular("O\n")})
	theirs := makeTree(t, store, map[string]fileSpec{"a": regular("T\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if ok {
		t.Fatalf("expected conflicted merge")
	}

	if m.ResultTree() != object.ZeroHash {
		t.Errorf("conflicted merge produced a result tree: %s", m.ResultTree())
	}
	entries := m.dc.EntriesAt("a")
	if got := stagesOf(entries); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("stages = %v, want [1 2 3]", got)
	}
	result := m.MergeResults()["a"]
	if result == nil || !result.HasConflicts {
		t.Fatalf("expected conflicting merge result, got %+v", result)
	}
	if m.dc.Entry("a") != nil {
		t.Errorf("conflicted path has a stage-0 entry")
	}
}

func TestMerge_ConflictWithTheirsFilter(t *testing.T) {
	theirsData := "T\n"
	store, metaDir, root := setupWorkMerge(t, map[string]fileSpec{"a": regular("O\n")})
	base := makeTree(t, store, map[string]fileSpec{"a": regular("A\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a": regular("O\n")})
	theirs := makeTree(t, store, map[string]fileSpec{"a": regular(theirsData)})

	m := workMerger(store, metaDir, root)
	m.SetFilter(func(path string) Resolution { return ResolveTheirs })

	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected filter-resolved merge, unmerged=%v failing=%v", m.UnmergedPaths(), m.FailingPaths())
	}

	dc, err := dircache.Load(metaDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := dc.Entry("a")
	if e == nil {
		t.Fatalf("no stage-0 entry for a")
	}
	if e.Hash != blobHash(t, theirsData) {
		t.Errorf("stage-0 hash = %s, want theirs blob", e.Hash)
	}
	if _, scheduled := m.ToBeCheckedOut()["a"]; !scheduled {
		t.Errorf("a not scheduled for checkout")
	}
	if len(m.UnmergedPaths()) != 0 {
		t.Errorf("unexpected unmerged paths: %v", m.UnmergedPaths())
	}

	onDisk, err := os.ReadFile(filepath.Join(root, "a"))
	if err != nil {
		t.Fatalf("read worktree: %v", err)
	}
	if string(onDisk) != theirsData {
		t.Errorf("worktree content = %q, want %q", onDisk, theirsData)
	}
	if bytes.Contains(onDisk, []byte("<<<<<<<")) {
		t.Errorf("conflict markers leaked into the worktree: %q", onDisk)
	}
}

func TestMerge_ConflictWithOursFilter(t *testing.T) {
	oursData := "O\n"
	store, metaDir, root := setupWorkMerge(t, map[string]fileSpec{"a": regular(oursData)})
	base := makeTree(t, store, map[string]fileSpec{"a": regular("A\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a": regular(oursData)})
	theirs := makeTree(t, store, map[string]fileSpec{"a": regular("T\n")})

	m := workMerger(store, metaDir, root)
	m.SetFilter(func(path string) Resolution { return ResolveOurs })

	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected filter-resolved merge, unmerged=%v failing=%v", m.UnmergedPaths(), m.FailingPaths())
	}

	dc, err := dircache.Load(metaDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := dc.Entry("a")
	if e == nil {
		t.Fatalf("no stage-0 entry for a")
	}
	if e.Hash != blobHash(t, oursData) {
		t.Errorf("stage-0 hash = %s, want ours blob", e.Hash)
	}

	onDisk, err := os.ReadFile(filepath.Join(root, "a"))
	if err != nil {
		t.Fatalf("read worktree: %v", err)
	}
	if string(onDisk) != oursData {
		t.Errorf("worktree content = %q, want %q", onDisk, oursData)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestMerge_DirtyWorktreeFails(t *testing.T) {
	store, metaDir, root := setupWorkMerge(t, map[string]fileSpec{
		"a.txt": regular("1x\n2\n3\n"),
		"b.txt": regular("B\n"),
	})
	base := makeTree(t, store, map[string]fileSpec{
		"a.txt": regular("1\n2\n3\n"),
		"b.txt": regular("B\n"),
	})
	ours := makeTree(t, store, map[string]fileSpec{
		"a.txt": regular("1x\n2\n3\n"),
		"b.txt": regular("B\n"),
	})
	theirs := makeTree(t, store, map[string]fileSpec{
		"a.txt": regular("1\n2\n3y\n"),
		"b.txt": regular("B2\n"),
	})

	// b.txt is clean in the index but edited on disk; a.txt merges first.
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("local edit\n"), 0o644); err != nil {
		t.Fatalf("dirty b.txt: %v", err)
	}

	m := workMerger(store, metaDir, root)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if ok {
		t.Fatalf("expected aborted merge")
	}
	if !m.Failed() {
		t.Fatalf("expected failing paths")
	}
	if reason := m.FailingPaths()["b.txt"]; reason != DirtyWorktree {
		t.Errorf("failing reason = %v, want %v", reason, DirtyWorktree)
	}

	// a.txt was content-merged before the failure and must be rolled back
	// to the staged (ours) content.
	restored, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("read a.txt: %v", err)
	}
	if string(restored) != "1x\n2\n3\n" {
		t.Errorf("a.txt = %q after cleanup, want staged content", restored)
	}
	if len(m.ModifiedFiles()) != 0 {
		t.Errorf("modified files not drained by cleanup: %v", m.ModifiedFiles())
	}

	// The dirty file keeps the user's edit.
	kept, err := os.ReadFile(filepath.Join(root, "b.txt"))
	if err != nil {
		t.Fatalf("read b.txt: %v", err)
	}
	if string(kept) != "local edit\n" {
		t.Errorf("b.txt = %q, local edit clobbered", kept)
	}
}

func TestMerge_DirtyIndexFails(t *testing.T) {
	store, metaDir, root := setupWorkMerge(t, map[string]fileSpec{"a": regular("staged\n")})
	base := makeTree(t, store, map[string]fileSpec{"a": regular("X\n")})
	ours := makeTree(t, store, map[string]fileSpec{"a": regular("X\n")})
	theirs := makeTree(t, store, map[string]fileSpec{"a": regular("Y\n")})

	m := workMerger(store, metaDir, root)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if ok {
		t.Fatalf("expected aborted merge")
	}
	if reason := m.FailingPaths()["a"]; reason != DirtyIndex {
		t.Errorf("failing reason = %v, want %v", reason, DirtyIndex)
	}
	if len(m.UnmergedPaths()) != 0 {
		t.Errorf("failing path also recorded as unmerged: %v", m.UnmergedPaths())
	}
}

// ---------------------------------------------------------------------------
// Working-tree mechanics
// ---------------------------------------------------------------------------

// Deletions must be replayed in reverse order so files inside a directory
// go before the directory itself.
func TestCheckout_ReverseDeletionOrder(t *testing.T) {
	root := t.TempDir()
	metaDir := filepath.Join(root, ".crux")
	if err := os.MkdirAll(filepath.Join(root, "d"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		t.Fatalf("mkdir meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "d", "f"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewMerger(object.NewStore(metaDir), metaDir, false)
	m.SetWorkTree(treewalk.NewWorkTreeSource(root, ".crux"))
	m.toBeDeleted = []string{"d", "d/f"}

	if err := m.checkout(); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if m.Failed() {
		t.Fatalf("deletions failed: %v", m.FailingPaths())
	}
	if _, err := os.Stat(filepath.Join(root, "d")); !os.IsNotExist(err) {
		t.Errorf("directory d still exists")
	}
	if got := m.ModifiedFiles(); len(got) != 2 || got[0] != "d/f" || got[1] != "d" {
		t.Errorf("modified files = %v, want [d/f d]", got)
	}
}

func TestMerge_TheirsDeletesFile(t *testing.T) {
	store, metaDir, root := setupWorkMerge(t, map[string]fileSpec{
		"gone.txt": regular("X\n"),
		"keep.txt": regular("K\n"),
	})
	base := makeTree(t, store, map[string]fileSpec{
		"gone.txt": regular("X\n"),
		"keep.txt": regular("K\n"),
	})
	theirs := makeTree(t, store, map[string]fileSpec{
		"keep.txt": regular("K\n"),
	})

	m := workMerger(store, metaDir, root)
	ok, err := m.Merge(base, base, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean merge, unmerged=%v failing=%v", m.UnmergedPaths(), m.FailingPaths())
	}
	if _, err := os.Stat(filepath.Join(root, "gone.txt")); !os.IsNotExist(err) {
		t.Errorf("gone.txt still present after merge")
	}
	if m.ResultTree() != theirs {
		t.Errorf("result tree = %s, want %s", m.ResultTree(), theirs)
	}
}

// ---------------------------------------------------------------------------
// Name conflicts
// ---------------------------------------------------------------------------

func TestMerge_FileDirectoryConflict(t *testing.T) {
	store := object.NewStore(t.TempDir())
	base := makeTree(t, store, map[string]fileSpec{"p": regular("base\n")})
	ours := makeTree(t, store, map[string]fileSpec{"p": regular("file\n")})
	theirs := makeTree(t, store, map[string]fileSpec{"p/nested": regular("dir\n")})

	m := NewMerger(store, "", true)
	ok, err := m.Merge(base, ours, theirs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if ok {
		t.Fatalf("expected conflicted merge")
	}

	if got := m.UnmergedPaths(); len(got) != 1 || got[0] != "p" {
		t.Errorf("unmerged = %v, want [p]", got)
	}
	entries := m.dc.EntriesAt("p")
	if got := stagesOf(entries); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("stages = %v, want [1 2]", got)
	}
	// The colliding directory must not be entered: nothing staged below p/.
	if got := m.dc.EntriesAt("p/nested"); len(got) != 0 {
		t.Errorf("descended into conflicted subtree: %v", got)
	}
}
