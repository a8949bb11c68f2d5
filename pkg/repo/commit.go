package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// Commit creates a new commit from the current index.
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	return r.CommitWithSigner(message, author, nil)
}

// CommitWithSigner creates a new commit and signs it when signer is
// provided.
//
//  1. Read the index; refuse when empty or unmerged.
//  2. Write the index as a tree.
//  3. Resolve HEAD for the parent (absent on the first commit).
//  4. Write the commit and advance the current ref with a CAS update.
func (r *Repo) CommitWithSigner(message, author string, signer CommitSigner) (object.Hash, error) {
	dc, err := dircache.Load(r.CruxDir)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(dc.Entries()) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}
	if dc.HasUnmerged() {
		return "", fmt.Errorf("commit: unresolved conflicts in index")
	}

	treeHash, err := dc.WriteTree(r.Store)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}
	// A failed HEAD resolution means this is the first commit.

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	if signer != nil {
		payload := object.CommitSigningPayload(commitObj)
		signature, err := signer(payload)
		if err != nil {
			return "", fmt.Errorf("commit: sign commit: %w", err)
		}
		commitObj.Signature = signature
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	if err := r.advanceHead(commitHash, parentHash); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return commitHash, nil
}

// advanceHead moves the current branch (or a detached HEAD) from oldHash
// to newHash.
func (r *Repo) advanceHead(newHash, oldHash object.Hash) error {
	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRef(head, newHash, oldHash); err != nil {
			return fmt.Errorf("update ref %q: %w", head, err)
		}
		return nil
	}
	if err := r.UpdateRef("HEAD", newHash, object.Hash(strings.TrimSpace(head))); err != nil {
		return fmt.Errorf("update detached HEAD: %w", err)
	}
	return nil
}
