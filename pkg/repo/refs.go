package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cruxvc/crux/pkg/object"
)

// ErrRefCASMismatch is returned when a compare-and-swap ref update finds a
// value other than the expected one.
var ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// Head reads .crux/HEAD. A symbolic HEAD yields the ref path (e.g.
// "refs/heads/main"); otherwise the raw content is a detached hash.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.CruxDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. "HEAD" reads HEAD; a symbolic HEAD resolves the target ref.
//  2. Names starting with "refs/" read .crux/<name>.
//  3. Anything else tries "refs/heads/<name>".
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		return object.Hash(head), nil
	}

	var refPath string
	if strings.HasPrefix(name, "refs/") {
		refPath = filepath.Join(r.CruxDir, filepath.FromSlash(name))
	} else {
		refPath = filepath.Join(r.CruxDir, "refs", "heads", name)
	}

	data, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return object.Hash(strings.TrimRight(string(data), "\n")), nil
}

// UpdateRef writes a hash to the named ref under .crux/ with lockfile +
// rename semantics. When expectedOld is given, the update only succeeds if
// the current value matches it ("" expects the ref to be absent).
func (r *Repo) UpdateRef(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}

	refPath := filepath.Join(r.CruxDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lock, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	defer os.Remove(lockPath)

	if len(expectedOld) == 1 {
		cur := object.Hash("")
		data, err := os.ReadFile(refPath)
		if err == nil {
			cur = object.Hash(strings.TrimRight(string(data), "\n"))
		} else if !errors.Is(err, os.ErrNotExist) {
			lock.Close()
			return fmt.Errorf("update ref %q: read: %w", name, err)
		}
		if cur != expectedOld[0] {
			lock.Close()
			return fmt.Errorf("update ref %q: %w (have %s, want %s)", name, ErrRefCASMismatch, cur, expectedOld[0])
		}
	}

	if _, err := lock.WriteString(string(h) + "\n"); err != nil {
		lock.Close()
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lock.Close(); err != nil {
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %q: held too long", lockPath)
		}
		time.Sleep(refLockRetryDelay)
	}
}

// CurrentBranch returns the branch HEAD points at, or an error when HEAD
// is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(head, "refs/heads/") {
		return "", fmt.Errorf("current branch: HEAD is detached")
	}
	return strings.TrimPrefix(head, "refs/heads/"), nil
}

// CreateBranch creates a new branch pointing at the given target hash.
// Returns an error if the branch already exists.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	refName := "refs/heads/" + name
	if err := r.UpdateRef(refName, target, ""); err != nil {
		if errors.Is(err, ErrRefCASMismatch) {
			return fmt.Errorf("create branch: branch %q already exists", name)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// ListBranches returns the branch names under refs/heads/, sorted.
func (r *Repo) ListBranches() ([]string, error) {
	headsDir := filepath.Join(r.CruxDir, "refs", "heads")
	entries, err := os.ReadDir(headsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && !strings.HasSuffix(e.Name(), ".lock") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
