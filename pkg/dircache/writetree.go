package dircache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cruxvc/crux/pkg/object"
)

// WriteTree converts the stage-0 entries into a hierarchical tree, writing
// TreeObj objects to the store and returning the root hash. It fails if any
// entry sits at a conflict stage.
func (d *DirCache) WriteTree(store *object.Store) (object.Hash, error) {
	if d.HasUnmerged() {
		return "", fmt.Errorf("write tree: index has unmerged entries")
	}
	return d.writeTreeDir(store, "")
}

// writeTreeDir builds a TreeObj for the given directory prefix and writes
// it to the store.
func (d *DirCache) writeTreeDir(store *object.Store, prefix string) (object.Hash, error) {
	// Collect direct children: files and subdirectory names.
	files := make(map[string]*Entry)
	subdirs := make(map[string]struct{})

	for _, entry := range d.entries {
		var rel string
		if prefix == "" {
			rel = entry.Path
		} else {
			if !strings.HasPrefix(entry.Path, prefix+"/") {
				continue
			}
			rel = entry.Path[len(prefix)+1:]
		}

		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			files[rel] = entry
		} else {
			subdirs[rel[:slash]] = struct{}{}
		}
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		names = append(names, name)
	}
	for name := range subdirs {
		// A name cannot be both a file and a directory in one tree.
		if _, isFile := files[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var entries []object.TreeEntry
	for _, name := range names {
		if entry, isFile := files[name]; isFile {
			entries = append(entries, object.TreeEntry{
				Name: name,
				Mode: entry.Mode,
				Hash: entry.Hash,
			})
		} else {
			childPrefix := name
			if prefix != "" {
				childPrefix = prefix + "/" + name
			}
			subHash, err := d.writeTreeDir(store, childPrefix)
			if err != nil {
				return "", fmt.Errorf("write tree %q: %w", childPrefix, err)
			}
			entries = append(entries, object.TreeEntry{
				Name: name,
				Mode: object.ModeTree,
				Hash: subHash,
			})
		}
	}

	treeObj := &object.TreeObj{Entries: entries}
	h, err := store.WriteTree(treeObj)
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}
