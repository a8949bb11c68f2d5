// Package merge implements the resolve merger: a three-way tree merge that
// decides per path between trivial resolution, line-level content merging,
// and recording a conflict across index stages. It updates the dircache,
// schedules working-tree checkouts and deletions, and rolls the working
// tree back when the merge aborts.
package merge

import (
	"fmt"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/diff3"
	"github.com/cruxvc/crux/pkg/object"
	"github.com/cruxvc/crux/pkg/treewalk"
)

// Walk slots, in the order sources are handed to the walker.
const (
	slotBase = iota
	slotOurs
	slotTheirs
	slotIndex
	slotWork
)

// FailureReason explains why a path made the merge abort. Failures are
// distinct from conflicts: a conflicted path is left for the user to
// resolve, a failing path stops the merge.
type FailureReason int

const (
	DirtyIndex FailureReason = iota + 1
	DirtyWorktree
	CouldNotDelete
)

func (r FailureReason) String() string {
	switch r {
	case DirtyIndex:
		return "dirty index"
	case DirtyWorktree:
		return "dirty worktree"
	case CouldNotDelete:
		return "could not delete"
	default:
		return fmt.Sprintf("failure(%d)", int(r))
	}
}

// Resolution is a side chosen by a ConflictFilter.
type Resolution int

const (
	ResolveOurs   Resolution = 1
	ResolveTheirs Resolution = 2
)

// ConflictFilter resolves a conflicted path automatically by picking a side.
type ConflictFilter func(path string) Resolution

// Merger performs one three-way tree merge. A Merger is used by a single
// caller for a single merge and is not reusable.
type Merger struct {
	store   *object.Store
	metaDir string
	inCore  bool

	dc     *dircache.DirCache
	work   *treewalk.WorkTreeSource
	labels [3]string
	filter ConflictFilter

	builder *dircache.Builder

	checkoutOrder []string
	checkoutMap   map[string]*dircache.Entry
	toBeDeleted   []string
	modifiedFiles []string
	unmergedPaths []string
	mergeResults  map[string]*diff3.Result
	failingPaths  map[string]FailureReason

	enterSubtree bool
	resultTree   object.Hash
}

// NewMerger creates a merger over the given object store. metaDir is the
// repository metadata directory used for implicit dircache access; it is
// ignored when the merge is in-core or a dircache is supplied explicitly.
func NewMerger(store *object.Store, metaDir string, inCore bool) *Merger {
	return &Merger{
		store:        store,
		metaDir:      metaDir,
		inCore:       inCore,
		labels:       [3]string{"BASE", "OURS", "THEIRS"},
		checkoutMap:  make(map[string]*dircache.Entry),
		mergeResults: make(map[string]*diff3.Result),
		failingPaths: make(map[string]FailureReason),
	}
}

// SetDirCache supplies a dircache. If it is already locked the caller owns
// the lock; otherwise the merger locks it for the duration of the merge.
func (m *Merger) SetDirCache(dc *dircache.DirCache) { m.dc = dc }

// SetWorkTree supplies the working-tree source. Without one, checks that
// need a clean worktree treat it as clean and merged content is handled
// as in in-core mode.
func (m *Merger) SetWorkTree(src *treewalk.WorkTreeSource) { m.work = src }

// SetLabels configures the names written into conflict markers, in
// base/ours/theirs order.
func (m *Merger) SetLabels(labels [3]string) { m.labels = labels }

// SetFilter installs an automatic conflict resolver.
func (m *Merger) SetFilter(f ConflictFilter) { m.filter = f }

// bare reports whether the merge has no working tree to mutate.
func (m *Merger) bare() bool { return m.inCore || m.work == nil }

// ResultTree returns the hash of the merged tree, or ZeroHash if the merge
// did not complete cleanly.
func (m *Merger) ResultTree() object.Hash { return m.resultTree }

// UnmergedPaths returns conflicted paths in walk order.
func (m *Merger) UnmergedPaths() []string { return m.unmergedPaths }

// ModifiedFiles returns the working-tree paths this merge touched, in the
// order they were touched.
func (m *Merger) ModifiedFiles() []string { return m.modifiedFiles }

// ToBeCheckedOut returns the entries scheduled for working-tree checkout.
func (m *Merger) ToBeCheckedOut() map[string]*dircache.Entry { return m.checkoutMap }

// MergeResults returns the content-merge outcome per conflicted path.
func (m *Merger) MergeResults() map[string]*diff3.Result { return m.mergeResults }

// FailingPaths returns the paths that made the merge abort, or nil when
// none did.
func (m *Merger) FailingPaths() map[string]FailureReason {
	if len(m.failingPaths) == 0 {
		return nil
	}
	return m.failingPaths
}

// Failed reports whether the merge was aborted by a failing path.
func (m *Merger) Failed() bool { return len(m.failingPaths) > 0 }

// Merge merges the three trees. It returns true when the merge completed
// without conflicts or failures; the merged tree is then available from
// ResultTree. A false return with nil error means conflicts were recorded
// or a failing path aborted the merge.
func (m *Merger) Merge(base, ours, theirs object.Hash) (bool, error) {
	if m.dc == nil {
		if m.inCore {
			m.dc = dircache.NewInCore()
		} else {
			dc, err := dircache.Load(m.metaDir)
			if err != nil {
				return false, err
			}
			m.dc = dc
		}
	}

	implicitLock := false
	if !m.dc.Locked() {
		if err := m.dc.Lock(); err != nil {
			return false, err
		}
		implicitLock = true
	}
	defer func() {
		if implicitLock && m.dc.Locked() {
			m.dc.Unlock()
		}
	}()

	return m.mergeTrees(base, ours, theirs)
}

func (m *Merger) mergeTrees(base, ours, theirs object.Hash) (bool, error) {
	m.builder = m.dc.Builder()

	sources := []treewalk.Source{
		treewalk.NewTreeSource(m.store, base),
		treewalk.NewTreeSource(m.store, ours),
		treewalk.NewTreeSource(m.store, theirs),
		treewalk.NewIndexSource(m.dc),
	}
	if m.work != nil && !m.inCore {
		sources = append(sources, m.work)
	}
	tw := treewalk.NewWalker(sources...)

	for {
		ok, err := tw.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		cont, err := m.processEntry(tw)
		if err != nil {
			return false, err
		}
		if !cont {
			if cleanupErr := m.cleanUp(); cleanupErr != nil {
				return false, cleanupErr
			}
			return false, nil
		}
		if tw.IsSubtree() && m.enterSubtree {
			tw.EnterSubtree()
		}
	}

	m.builder.Finish()

	if !m.bare() {
		if err := m.checkout(); err != nil {
			return false, err
		}
	}
	if m.inCore {
		// Entries are already installed; nothing to persist.
	} else if err := m.dc.Commit(); err != nil {
		if cleanupErr := m.cleanUp(); cleanupErr != nil {
			return false, cleanupErr
		}
		return false, fmt.Errorf("merge: %w", err)
	}

	if len(m.unmergedPaths) == 0 && !m.Failed() {
		tree, err := m.dc.WriteTree(m.store)
		if err != nil {
			return false, fmt.Errorf("merge: write result tree: %w", err)
		}
		m.resultTree = tree
		return true, nil
	}
	return false, nil
}
