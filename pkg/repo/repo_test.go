package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
)

func TestInitAndOpen(t *testing.T) {
	dir := t.TempDir()

	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Init(dir); err == nil {
		t.Errorf("second Init succeeded")
	}

	sub := filepath.Join(dir, "some", "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	opened, err := Open(sub)
	if err != nil {
		t.Fatalf("Open from subdirectory: %v", err)
	}
	if opened.RootDir != r.RootDir {
		t.Errorf("RootDir = %q, want %q", opened.RootDir, r.RootDir)
	}
}

func TestAddCommitCheckout(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "docs"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "docs", "readme"), []byte("hi\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Add([]string{"docs/readme"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	dc, err := dircache.Load(r.CruxDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := dc.Entry("docs/readme")
	if e == nil {
		t.Fatalf("staged entry missing")
	}
	if e.Hash != object.HashObject(object.TypeBlob, []byte("hi\n")) {
		t.Errorf("staged hash mismatch")
	}

	first, err := r.Commit("first", "tester")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// A second branch stays at the first commit while main moves on, then
	// checkout returns to the first state.
	if err := r.CreateBranch("other", first); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "docs", "readme"), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Add([]string{"docs/readme"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("second", "tester"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := r.Checkout("other"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "docs", "readme"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hi\n" {
		t.Errorf("checked-out content = %q, want original", data)
	}
}

func TestCheckout_RefusesDirtyTree(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("v1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Add([]string{"f"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	head, err := r.Commit("c1", "tester")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.CreateBranch("other", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("local\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Checkout("other"); err == nil {
		t.Errorf("Checkout succeeded with a dirty worktree")
	}
}

func TestUpdateRef_CAS(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := r.UpdateRef("refs/heads/x", "aaa", ""); err != nil {
		t.Fatalf("create ref: %v", err)
	}
	if err := r.UpdateRef("refs/heads/x", "bbb", "aaa"); err != nil {
		t.Fatalf("advance ref: %v", err)
	}
	if err := r.UpdateRef("refs/heads/x", "ccc", "zzz"); err == nil {
		t.Errorf("CAS update with stale old value succeeded")
	}
	h, err := r.ResolveRef("refs/heads/x")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if h != "bbb" {
		t.Errorf("ref = %s, want bbb", h)
	}
}
