// Package treewalk provides a synchronized pre-order walk over several
// tree-shaped sources: stored trees, the dircache, and the working
// directory. Sources advance in lock-step by entry name, so a file in one
// source lines up with a same-named directory in another; the caller sees
// both at a single position and decides whether to descend.
package treewalk

import (
	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
)

// slot is one source's view of the current position.
type slot struct {
	present bool
	mode    object.FileMode
	hash    object.Hash
	index   *dircache.Entry
	work    *WorkEntry
}

// frame tracks the per-source listings of one directory level.
type frame struct {
	dir   string
	lists [][]entry
	idx   []int
}

// Walker advances several sources through the union of their paths.
type Walker struct {
	sources []Source
	stack   []*frame

	path    string
	slots   []slot
	subtree bool
	descend bool
	started bool
}

// NewWalker creates a walker over sources. Slot numbering follows the
// argument order.
func NewWalker(sources ...Source) *Walker {
	return &Walker{sources: sources}
}

// Next advances to the next position. It returns false when the walk is
// exhausted. If EnterSubtree was called at a subtree position, Next first
// descends into it.
func (w *Walker) Next() (bool, error) {
	if !w.started {
		w.started = true
		if err := w.pushFrame(""); err != nil {
			return false, err
		}
	} else if w.subtree && w.descend {
		if err := w.pushFrame(w.path); err != nil {
			return false, err
		}
	}
	w.descend = false

	for len(w.stack) > 0 {
		f := w.stack[len(w.stack)-1]

		// Minimum entry name across sources at this level.
		min := ""
		found := false
		for i, lst := range f.lists {
			if f.idx[i] < len(lst) {
				name := lst[f.idx[i]].name
				if !found || name < min {
					min, found = name, true
				}
			}
		}
		if !found {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}

		// Consume every source sitting at that name.
		w.path = join(f.dir, min)
		w.subtree = false
		w.slots = make([]slot, len(w.sources))
		for i, lst := range f.lists {
			if f.idx[i] < len(lst) && lst[f.idx[i]].name == min {
				e := lst[f.idx[i]]
				w.slots[i] = slot{present: true, mode: e.mode, hash: e.hash, index: e.index, work: e.work}
				if e.mode.IsTree() {
					w.subtree = true
				}
				f.idx[i]++
			}
		}
		return true, nil
	}
	return false, nil
}

// pushFrame lists dir in every source whose current slot is a tree (or, for
// the root, in every source) and pushes the level onto the stack.
func (w *Walker) pushFrame(dir string) error {
	f := &frame{
		dir:   dir,
		lists: make([][]entry, len(w.sources)),
		idx:   make([]int, len(w.sources)),
	}
	for i, src := range w.sources {
		if dir != "" && !w.slots[i].mode.IsTree() {
			continue
		}
		lst, err := src.List(dir)
		if err != nil {
			return err
		}
		f.lists[i] = lst
	}
	w.stack = append(w.stack, f)
	return nil
}

// EnterSubtree requests that the next call to Next descends into the
// current subtree position instead of skipping over it.
func (w *Walker) EnterSubtree() { w.descend = true }

// IsSubtree reports whether any source has a directory at the current
// position.
func (w *Walker) IsSubtree() bool { return w.subtree }

// Path returns the repo-relative path of the current position.
func (w *Walker) Path() string { return w.path }

// RawMode returns the packed mode of the given slot; ModeMissing when the
// slot is absent at this position.
func (w *Walker) RawMode(i int) object.FileMode {
	if i >= len(w.slots) || !w.slots[i].present {
		return object.ModeMissing
	}
	return w.slots[i].mode
}

// ObjectID returns the object hash of the given slot. Working-tree slots
// hash their content on first use.
func (w *Walker) ObjectID(i int) (object.Hash, error) {
	if i >= len(w.slots) || !w.slots[i].present {
		return object.ZeroHash, nil
	}
	s := w.slots[i]
	if s.work != nil && s.mode.NonTree() {
		return s.work.ContentHash()
	}
	return s.hash, nil
}

// IDEqual reports whether two slots hold identical object content.
func (w *Walker) IDEqual(a, b int) (bool, error) {
	ha, err := w.ObjectID(a)
	if err != nil {
		return false, err
	}
	hb, err := w.ObjectID(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// IndexEntry returns the dircache entry at the current position, or nil.
func (w *Walker) IndexEntry() *dircache.Entry {
	for _, s := range w.slots {
		if s.index != nil {
			return s.index
		}
	}
	return nil
}

// WorkEntry returns the working-tree entry at the current position, or nil.
func (w *Walker) WorkEntry() *WorkEntry {
	for _, s := range w.slots {
		if s.work != nil {
			return s.work
		}
	}
	return nil
}
