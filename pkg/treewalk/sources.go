package treewalk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cruxvc/crux/pkg/dircache"
	"github.com/cruxvc/crux/pkg/object"
)

// entry is one child of a directory as seen by a single source.
type entry struct {
	name  string
	mode  object.FileMode
	hash  object.Hash
	index *dircache.Entry
	work  *WorkEntry
}

// Source lists the ordered children of a repository directory. The walker
// calls List("") for the root and then only for directories it descends
// into, in pre-order.
type Source interface {
	List(dir string) ([]entry, error)
}

// ---------------------------------------------------------------------------
// TreeSource
// ---------------------------------------------------------------------------

// TreeSource walks a stored tree object. A zero root hash behaves as an
// empty tree.
type TreeSource struct {
	store *object.Store
	subtrees map[string]object.Hash
}

// NewTreeSource returns a source rooted at the given tree hash.
func NewTreeSource(store *object.Store, root object.Hash) *TreeSource {
	return &TreeSource{
		store:    store,
		subtrees: map[string]object.Hash{"": root},
	}
}

func (t *TreeSource) List(dir string) ([]entry, error) {
	h, ok := t.subtrees[dir]
	if !ok || h == object.ZeroHash {
		return nil, nil
	}
	tree, err := t.store.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("tree source %q: %w", dir, err)
	}

	out := make([]entry, 0, len(tree.Entries))
	for _, te := range tree.Entries {
		if te.Mode.IsTree() {
			t.subtrees[join(dir, te.Name)] = te.Hash
		}
		out = append(out, entry{name: te.Name, mode: te.Mode, hash: te.Hash})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// ---------------------------------------------------------------------------
// IndexSource
// ---------------------------------------------------------------------------

// IndexSource presents the flat dircache as a directory hierarchy. A path
// with conflict stages is presented through its stage-0 entry when one
// exists, otherwise through the lowest recorded stage.
type IndexSource struct {
	dc *dircache.DirCache
}

// NewIndexSource returns a source over the given dircache.
func NewIndexSource(dc *dircache.DirCache) *IndexSource {
	return &IndexSource{dc: dc}
}

func (s *IndexSource) List(dir string) ([]entry, error) {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	files := make(map[string]*dircache.Entry)
	subdirs := make(map[string]struct{})

	for _, e := range s.dc.Entries() {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		rel := e.Path[len(prefix):]
		slash := strings.IndexByte(rel, '/')
		if slash >= 0 {
			subdirs[rel[:slash]] = struct{}{}
			continue
		}
		if prev, ok := files[rel]; !ok || e.Stage < prev.Stage {
			files[rel] = e
		}
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := files[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]entry, 0, len(names))
	for _, name := range names {
		if e, isFile := files[name]; isFile {
			out = append(out, entry{name: name, mode: e.Mode, hash: e.Hash, index: e})
		} else {
			out = append(out, entry{name: name, mode: object.ModeTree})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// WorkTreeSource
// ---------------------------------------------------------------------------

// WorkEntry is a working-tree file at the current walk position. Content
// hashing is deferred until a comparison needs it.
type WorkEntry struct {
	Path string // repo-relative
	Abs  string
	Mode object.FileMode
	Size int64

	hash   object.Hash
	hashed bool
}

// ContentHash reads the file (or link target) and returns its blob hash.
// The result is cached for the lifetime of the entry.
func (w *WorkEntry) ContentHash() (object.Hash, error) {
	if w.hashed {
		return w.hash, nil
	}
	var data []byte
	var err error
	if w.Mode.IsSymlink() {
		var target string
		target, err = os.Readlink(w.Abs)
		data = []byte(target)
	} else {
		data, err = os.ReadFile(w.Abs)
	}
	if err != nil {
		return object.ZeroHash, fmt.Errorf("hash worktree %q: %w", w.Path, err)
	}
	w.hash = object.HashObject(object.TypeBlob, data)
	w.hashed = true
	return w.hash, nil
}

// ModeDiffers reports whether the on-disk mode disagrees with m in kind or
// executable bit. A missing m counts as different.
func (w *WorkEntry) ModeDiffers(m object.FileMode) bool {
	return w.Mode != m
}

// WorkTreeSource enumerates the working directory, skipping the repository
// metadata directory.
type WorkTreeSource struct {
	root    string
	metaDir string
}

// NewWorkTreeSource returns a source over the working tree rooted at root.
// Entries named metaDir (e.g. ".crux") at the top level are skipped.
func NewWorkTreeSource(root, metaDir string) *WorkTreeSource {
	return &WorkTreeSource{root: root, metaDir: metaDir}
}

// Root returns the working-tree root directory.
func (s *WorkTreeSource) Root() string { return s.root }

func (s *WorkTreeSource) List(dir string) ([]entry, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(dir))
	ents, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("worktree list %q: %w", dir, err)
	}

	out := make([]entry, 0, len(ents))
	for _, de := range ents {
		if dir == "" && de.Name() == s.metaDir {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("worktree stat %q: %w", join(dir, de.Name()), err)
		}
		mode := object.ModeFromFileInfo(info)
		we := &WorkEntry{
			Path: join(dir, de.Name()),
			Abs:  filepath.Join(abs, de.Name()),
			Mode: mode,
			Size: info.Size(),
		}
		out = append(out, entry{name: de.Name(), mode: mode, work: we})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
