package repo

import (
	"fmt"
	"time"

	"github.com/cruxvc/crux/pkg/merge"
	"github.com/cruxvc/crux/pkg/object"
	"github.com/cruxvc/crux/pkg/treewalk"
)

// MergeReport is the overall result of a repository-level merge.
type MergeReport struct {
	AlreadyUpToDate bool
	FastForward     bool
	Conflicts       []string                       // unmerged paths, walk order
	FailingPaths    map[string]merge.FailureReason // non-nil when the merge aborted
	MergeCommit     object.Hash                    // set when a merge commit was created
}

// HasConflicts reports whether the merge left unresolved paths behind.
func (rep *MergeReport) HasConflicts() bool { return len(rep.Conflicts) > 0 }

// Failed reports whether failing paths were recorded. Dirty-index and
// dirty-worktree failures abort the walk and leave the index untouched; a
// deletion that could not be made is recorded during checkout, after which
// the merged index is still written.
func (rep *MergeReport) Failed() bool { return len(rep.FailingPaths) > 0 }

// FindMergeBase finds a common ancestor of two commits: the first ancestor
// of b, scanning outward breadth-first, that is also an ancestor of a.
// The zero hash is returned when the histories are unrelated.
func (r *Repo) FindMergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	if a == b {
		return a, nil
	}

	ancestors := make(map[object.Hash]struct{})
	queue := []object.Hash{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := ancestors[cur]; seen {
			continue
		}
		ancestors[cur] = struct{}{}
		commit, err := r.Store.ReadCommit(cur)
		if err != nil {
			return "", fmt.Errorf("find merge base: %w", err)
		}
		for _, p := range commit.Parents {
			if p != "" {
				queue = append(queue, p)
			}
		}
	}

	visited := map[object.Hash]struct{}{b: {}}
	queue = []object.Hash{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := ancestors[cur]; ok {
			return cur, nil
		}
		commit, err := r.Store.ReadCommit(cur)
		if err != nil {
			return "", fmt.Errorf("find merge base: %w", err)
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return "", nil
}

// Merge merges the named branch into the current HEAD.
//
// Algorithm:
//  1. Resolve HEAD and the branch to commit hashes.
//  2. Find the merge base; short-circuit already-up-to-date and
//     fast-forward cases.
//  3. Run the resolve merger over the three trees against the index and
//     working tree.
//  4. On a clean result, create a merge commit with two parents.
func (r *Repo) Merge(branchName string) (*MergeReport, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}
	branchHash, err := r.ResolveRef("refs/heads/" + branchName)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve branch %q: %w", branchName, err)
	}

	baseHash, err := r.FindMergeBase(headHash, branchHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	report := &MergeReport{}
	if baseHash == branchHash {
		report.AlreadyUpToDate = true
		return report, nil
	}
	if baseHash == headHash {
		if err := r.fastForward(branchHash); err != nil {
			return nil, fmt.Errorf("merge: fast-forward: %w", err)
		}
		report.FastForward = true
		report.MergeCommit = branchHash
		return report, nil
	}

	headCommit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read head commit: %w", err)
	}
	branchCommit, err := r.Store.ReadCommit(branchHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read branch commit: %w", err)
	}
	baseTree := object.ZeroHash
	if baseHash != "" {
		baseCommit, err := r.Store.ReadCommit(baseHash)
		if err != nil {
			return nil, fmt.Errorf("merge: read base commit: %w", err)
		}
		baseTree = baseCommit.TreeHash
	}

	labels := r.Config.MergeLabels()
	if current, err := r.CurrentBranch(); err == nil {
		labels[1] = current
	}
	labels[2] = branchName

	m := merge.NewMerger(r.Store, r.CruxDir, false)
	m.SetWorkTree(treewalk.NewWorkTreeSource(r.RootDir, MetaDirName))
	m.SetLabels(labels)

	ok, err := m.Merge(baseTree, headCommit.TreeHash, branchCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	report.Conflicts = m.UnmergedPaths()
	report.FailingPaths = m.FailingPaths()
	if !ok {
		return report, nil
	}

	mergeHash, err := r.commitMerge(
		fmt.Sprintf("Merge branch '%s'", branchName),
		r.Config.User.Name,
		m.ResultTree(),
		headHash,
		branchHash,
	)
	if err != nil {
		return nil, fmt.Errorf("merge: commit: %w", err)
	}
	report.MergeCommit = mergeHash
	return report, nil
}

// fastForward advances the current branch to target and resets the
// working tree and index to its content.
func (r *Repo) fastForward(target object.Hash) error {
	if err := r.ensureClean(); err != nil {
		return err
	}
	commit, err := r.Store.ReadCommit(target)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", target, err)
	}

	old, err := r.ResolveRef("HEAD")
	if err != nil {
		return err
	}
	if err := r.advanceHead(target, old); err != nil {
		return err
	}

	return r.resetToTree(commit.TreeHash)
}

// commitMerge creates a commit with two parents and advances the current
// branch, using a tree the merger already wrote.
func (r *Repo) commitMerge(message, author string, tree object.Hash, parent1, parent2 object.Hash) (object.Hash, error) {
	commitObj := &object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{parent1, parent2},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	if err := r.advanceHead(commitHash, parent1); err != nil {
		return "", err
	}
	return commitHash, nil
}
