package merge

import (
	"fmt"
	"os"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/diff3"
	"github.com/cruxvc/crux/pkg/object"
	"github.com/cruxvc/crux/pkg/treewalk"
)

// processEntry decides the fate of a single walk position. It returns
// false to abort the merge; the failing path has then been recorded.
func (m *Merger) processEntry(tw *treewalk.Walker) (bool, error) {
	m.enterSubtree = true

	path := tw.Path()
	modeB := tw.RawMode(slotBase)
	modeO := tw.RawMode(slotOurs)
	modeT := tw.RawMode(slotTheirs)
	work := tw.WorkEntry()

	// Phantom produced by name-conflict alignment: nothing on any side.
	if modeB == object.ModeMissing && modeO == object.ModeMissing && modeT == object.ModeMissing {
		return true, nil
	}

	// The index entry standing in for ours, synthesised from the ours tree
	// when the index has nothing at this path.
	ourDce := tw.IndexEntry()
	if ourDce == nil && modeO.NonTree() {
		id, err := tw.ObjectID(slotOurs)
		if err != nil {
			return false, err
		}
		ourDce = &dircache.Entry{Path: path, Stage: dircache.StageMerged, Mode: modeO, Hash: id}
	}

	// A staged change that does not match ours would be silently folded
	// into the merge; refuse instead.
	dirty, err := m.indexDirty(tw, true)
	if err != nil {
		return false, err
	}
	if dirty {
		return false, nil
	}

	// Both sides carry identical non-tree content.
	if modeO.NonTree() && modeT.NonTree() {
		eq, err := tw.IDEqual(slotOurs, slotTheirs)
		if err != nil {
			return false, err
		}
		if eq {
			if modeO == modeT {
				if _, err := m.builder.Keep(ourDce); err != nil {
					return false, err
				}
				return true, nil
			}
			return m.resolveModes(tw, path, modeB, modeO, modeT, ourDce, work)
		}
	}

	// Theirs did not change anything relative to base: ours wins.
	if modeO.NonTree() && modeB == modeT {
		eq, err := tw.IDEqual(slotBase, slotTheirs)
		if err != nil {
			return false, err
		}
		if eq {
			if _, err := m.builder.Keep(ourDce); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	// Ours did not change anything relative to base: take theirs.
	if modeB == modeO {
		eq, err := tw.IDEqual(slotBase, slotOurs)
		if err != nil {
			return false, err
		}
		if eq {
			return m.takeTheirs(tw, path, modeB, modeO, modeT, ourDce, work)
		}
	}

	// File-versus-directory clash between the sides.
	if tw.IsSubtree() {
		if modeO.NonTree() && !modeT.NonTree() {
			if err := m.stageFileDirConflict(tw, path, modeB, slotOurs, dircache.StageOurs); err != nil {
				return false, err
			}
			return true, nil
		}
		if modeT.NonTree() && !modeO.NonTree() {
			if err := m.stageFileDirConflict(tw, path, modeB, slotTheirs, dircache.StageTheirs); err != nil {
				return false, err
			}
			return true, nil
		}
		if !modeO.NonTree() {
			// Trees on both relevant sides: descend.
			return true, nil
		}
	}

	// Both sides are files with differing content: line-level merge.
	if modeO.NonTree() && modeT.NonTree() {
		return m.contentMergeEntry(tw, path, modeB, modeO, modeT, ourDce, work)
	}

	// One side deleted, the other modified (or the modes diverge with one
	// side gone): a modify/delete conflict unless the surviving side is
	// untouched.
	if modeO != modeT {
		conflicted := false
		if modeO != object.ModeMissing {
			eq, err := tw.IDEqual(slotBase, slotOurs)
			if err != nil {
				return false, err
			}
			conflicted = !eq
		}
		if !conflicted && modeT != object.ModeMissing {
			eq, err := tw.IDEqual(slotBase, slotTheirs)
			if err != nil {
				return false, err
			}
			conflicted = !eq
		}
		if conflicted {
			return m.modifyDeleteConflict(tw, path, modeO, modeT, ourDce, work)
		}
	}

	return true, nil
}

// resolveModes handles identical content carried under different modes.
func (m *Merger) resolveModes(tw *treewalk.Walker, path string, modeB, modeO, modeT object.FileMode, ourDce *dircache.Entry, work *treewalk.WorkEntry) (bool, error) {
	newMode := MergeModes(modeB, modeO, modeT)
	if newMode != object.ModeMissing {
		if newMode == modeO {
			if _, err := m.builder.Keep(ourDce); err != nil {
				return false, err
			}
			return true, nil
		}
		// The merged mode comes from theirs, so the file will be rewritten.
		dirty, err := m.worktreeDirty(tw, work, modeO, false)
		if err != nil {
			return false, err
		}
		if dirty {
			if m.filter != nil {
				return m.applyFilter(tw, path, ourDce)
			}
			if _, err := m.worktreeDirty(tw, work, modeO, true); err != nil {
				return false, err
			}
			return false, nil
		}
		e, err := m.addFromSlot(tw, path, slotTheirs, dircache.StageMerged)
		if err != nil {
			return false, err
		}
		if e != nil {
			m.scheduleCheckout(path, e)
		}
		return true, nil
	}

	// Modes cannot be merged.
	if m.filter != nil {
		return m.applyFilter(tw, path, ourDce)
	}
	if err := m.stageConflict(tw, path); err != nil {
		return false, err
	}
	m.markUnmerged(path)
	// Consumers rely on the key being present even without content hunks.
	m.mergeResults[path] = &diff3.Result{}
	return true, nil
}

// takeTheirs applies theirs' change when ours matches the base.
func (m *Merger) takeTheirs(tw *treewalk.Walker, path string, modeB, modeO, modeT object.FileMode, ourDce *dircache.Entry, work *treewalk.WorkEntry) (bool, error) {
	switch {
	case modeT.NonTree():
		dirty, err := m.worktreeDirty(tw, work, modeO, false)
		if err != nil {
			return false, err
		}
		if dirty {
			if m.filter != nil {
				return m.applyFilter(tw, path, ourDce)
			}
			if _, err := m.worktreeDirty(tw, work, modeO, true); err != nil {
				return false, err
			}
			return false, nil
		}
		e, err := m.addFromSlot(tw, path, slotTheirs, dircache.StageMerged)
		if err != nil {
			return false, err
		}
		if e != nil {
			m.scheduleCheckout(path, e)
		}
	case modeT == object.ModeMissing && modeB != object.ModeMissing:
		// Theirs deleted the path.
		dirty, err := m.worktreeDirty(tw, work, modeO, false)
		if err != nil {
			return false, err
		}
		if dirty {
			if m.filter != nil {
				return m.applyFilter(tw, path, ourDce)
			}
			if _, err := m.worktreeDirty(tw, work, modeO, true); err != nil {
				return false, err
			}
			return false, nil
		}
		m.toBeDeleted = append(m.toBeDeleted, path)
	}
	return true, nil
}

// stageFileDirConflict records a file-versus-directory clash: the file side
// is staged, the directory side is not entered.
func (m *Merger) stageFileDirConflict(tw *treewalk.Walker, path string, modeB object.FileMode, fileSlot, fileStage int) error {
	if modeB.NonTree() {
		if _, err := m.addFromSlot(tw, path, slotBase, dircache.StageBase); err != nil {
			return err
		}
	}
	if _, err := m.addFromSlot(tw, path, fileSlot, fileStage); err != nil {
		return err
	}
	m.markUnmerged(path)
	m.enterSubtree = false
	return nil
}

// contentMergeEntry merges two differing file contents line by line.
func (m *Merger) contentMergeEntry(tw *treewalk.Walker, path string, modeB, modeO, modeT object.FileMode, ourDce *dircache.Entry, work *treewalk.WorkEntry) (bool, error) {
	dirty, err := m.worktreeDirty(tw, work, modeO, false)
	if err != nil {
		return false, err
	}
	if dirty {
		if m.filter != nil {
			return m.applyFilter(tw, path, ourDce)
		}
		if _, err := m.worktreeDirty(tw, work, modeO, true); err != nil {
			return false, err
		}
		return false, nil
	}

	// Gitlinks have no line structure; always a conflict.
	if modeO.IsGitlink() || modeT.IsGitlink() {
		if err := m.stageConflict(tw, path); err != nil {
			return false, err
		}
		m.markUnmerged(path)
		return true, nil
	}

	result, err := m.contentMerge(tw)
	if err != nil {
		return false, err
	}

	if result.HasConflicts && m.filter != nil {
		return m.applyFilter(tw, path, ourDce)
	}

	of, err := m.writeMergedFile(path, result, MergeModes(modeB, modeO, modeT))
	if err != nil {
		return false, err
	}
	if err := m.updateIndex(tw, path, modeB, modeO, modeT, result, of); err != nil {
		return false, err
	}
	if result.HasConflicts {
		m.markUnmerged(path)
	}
	m.modifiedFiles = append(m.modifiedFiles, path)
	return true, nil
}

// modifyDeleteConflict stages a conflict where one side deleted a path the
// other side changed.
func (m *Merger) modifyDeleteConflict(tw *treewalk.Walker, path string, modeO, modeT object.FileMode, ourDce *dircache.Entry, work *treewalk.WorkEntry) (bool, error) {
	scheduleTheirs := false
	if modeO == object.ModeMissing {
		// Ours deleted; the worktree slot may hold unrelated content.
		dirty, err := m.worktreeDirty(tw, work, modeO, false)
		if err != nil {
			return false, err
		}
		if dirty {
			if m.filter != nil {
				return m.applyFilter(tw, path, ourDce)
			}
			if _, err := m.worktreeDirty(tw, work, modeO, true); err != nil {
				return false, err
			}
			return false, nil
		}
		scheduleTheirs = modeT.NonTree()
	}

	if _, err := m.addFromSlot(tw, path, slotBase, dircache.StageBase); err != nil {
		return false, err
	}
	if _, err := m.addFromSlot(tw, path, slotOurs, dircache.StageOurs); err != nil {
		return false, err
	}
	e, err := m.addFromSlot(tw, path, slotTheirs, dircache.StageTheirs)
	if err != nil {
		return false, err
	}
	if scheduleTheirs && e != nil {
		m.scheduleCheckout(path, e)
	}

	m.markUnmerged(path)
	result, err := m.contentMerge(tw)
	if err != nil {
		return false, err
	}
	m.mergeResults[path] = result
	return true, nil
}

// ---------------------------------------------------------------------------
// Dirty checks
// ---------------------------------------------------------------------------

// indexDirty reports whether the index entry diverges from ours. When
// record is set and the check trips, the path is recorded as failing.
func (m *Merger) indexDirty(tw *treewalk.Walker, record bool) (bool, error) {
	modeI := tw.RawMode(slotIndex)
	modeO := tw.RawMode(slotOurs)
	if !modeI.NonTree() {
		return false, nil
	}
	eq, err := tw.IDEqual(slotIndex, slotOurs)
	if err != nil {
		return false, err
	}
	dirty := !(modeI == modeO && eq)
	if dirty && record {
		m.failingPaths[tw.Path()] = DirtyIndex
	}
	return dirty, nil
}

// worktreeDirty reports whether the working-tree file diverges from ours.
func (m *Merger) worktreeDirty(tw *treewalk.Walker, work *treewalk.WorkEntry, modeO object.FileMode, record bool) (bool, error) {
	if m.inCore || work == nil {
		return false, nil
	}
	dirty := work.ModeDiffers(modeO)
	if !dirty && tw.RawMode(slotWork).NonTree() {
		eq, err := tw.IDEqual(slotWork, slotOurs)
		if err != nil {
			return false, err
		}
		dirty = !eq
	}
	if dirty && record {
		m.failingPaths[tw.Path()] = DirtyWorktree
	}
	return dirty, nil
}

// ---------------------------------------------------------------------------
// Index operations
// ---------------------------------------------------------------------------

// addFromSlot appends a new entry copied from the given slot, unless the
// slot is absent or a tree.
func (m *Merger) addFromSlot(tw *treewalk.Walker, path string, slot, stage int) (*dircache.Entry, error) {
	mode := tw.RawMode(slot)
	if mode == object.ModeMissing || mode.IsTree() {
		return nil, nil
	}
	id, err := tw.ObjectID(slot)
	if err != nil {
		return nil, err
	}
	e := &dircache.Entry{Path: path, Stage: stage, Mode: mode, Hash: id}
	if err := m.builder.Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// stageConflict records the three sides of path at stages 1/2/3.
func (m *Merger) stageConflict(tw *treewalk.Walker, path string) error {
	if _, err := m.addFromSlot(tw, path, slotBase, dircache.StageBase); err != nil {
		return err
	}
	if _, err := m.addFromSlot(tw, path, slotOurs, dircache.StageOurs); err != nil {
		return err
	}
	if _, err := m.addFromSlot(tw, path, slotTheirs, dircache.StageTheirs); err != nil {
		return err
	}
	return nil
}

func (m *Merger) markUnmerged(path string) {
	m.unmergedPaths = append(m.unmergedPaths, path)
}

func (m *Merger) scheduleCheckout(path string, e *dircache.Entry) {
	if _, ok := m.checkoutMap[path]; !ok {
		m.checkoutOrder = append(m.checkoutOrder, path)
	}
	m.checkoutMap[path] = e
}

// applyFilter resolves a conflicted path by the configured filter: ours
// keeps the index entry, theirs stages the incoming side for checkout.
func (m *Merger) applyFilter(tw *treewalk.Walker, path string, ourDce *dircache.Entry) (bool, error) {
	if m.filter(path) == ResolveTheirs {
		e, err := m.addFromSlot(tw, path, slotTheirs, dircache.StageMerged)
		if err != nil {
			return false, err
		}
		if e != nil {
			m.scheduleCheckout(path, e)
		}
		return true, nil
	}
	if ourDce != nil {
		if _, err := m.builder.Keep(ourDce); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Content loading and merging
// ---------------------------------------------------------------------------

// rawText resolves an object id to its byte content; the zero id yields an
// empty text.
func (m *Merger) rawText(h object.Hash) ([]byte, error) {
	if h == object.ZeroHash {
		return nil, nil
	}
	blob, err := m.store.ReadBlob(h)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// contentMerge runs the line-level three-way merge over the walk position.
func (m *Merger) contentMerge(tw *treewalk.Walker) (*diff3.Result, error) {
	var texts [3][]byte
	for slot := slotBase; slot <= slotTheirs; slot++ {
		if !tw.RawMode(slot).NonTree() {
			continue
		}
		id, err := tw.ObjectID(slot)
		if err != nil {
			return nil, err
		}
		text, err := m.rawText(id)
		if err != nil {
			return nil, err
		}
		texts[slot] = text
	}
	result := diff3.Merge(texts[slotBase], texts[slotOurs], texts[slotTheirs])
	return &result, nil
}

// updateIndex stages the outcome of a content merge: conflict stages plus
// the stored result on conflict, or a fresh stage-0 entry whose blob is the
// merged content.
func (m *Merger) updateIndex(tw *treewalk.Walker, path string, modeB, modeO, modeT object.FileMode, result *diff3.Result, of string) error {
	if result.HasConflicts {
		if err := m.stageConflict(tw, path); err != nil {
			return err
		}
		m.mergeResults[path] = result
		return nil
	}

	mode := MergeModes(modeB, modeO, modeT)
	if mode == object.ModeMissing {
		mode = object.ModeFile
	}

	data, err := os.ReadFile(of)
	if err != nil {
		return fmt.Errorf("read merged file %q: %w", path, err)
	}
	info, err := os.Stat(of)
	if err != nil {
		return fmt.Errorf("stat merged file %q: %w", path, err)
	}
	hash, err := m.store.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return fmt.Errorf("store merged blob %q: %w", path, err)
	}
	if m.bare() {
		os.Remove(of)
	}

	e := &dircache.Entry{
		Path:    path,
		Stage:   dircache.StageMerged,
		Mode:    mode,
		Hash:    hash,
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}
	return m.builder.Add(e)
}
