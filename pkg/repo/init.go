package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruxvc/crux/pkg/object"
)

// Init creates a new crux repository at path: the .crux/ directory with
// objects/, refs/heads/, a HEAD pointing at main, and a default config.
// Returns an error if a .crux/ directory already exists.
func Init(path string) (*Repo, error) {
	cruxDir := filepath.Join(path, MetaDirName)

	if _, err := os.Stat(cruxDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", cruxDir)
	}

	dirs := []string{
		filepath.Join(cruxDir, "objects"),
		filepath.Join(cruxDir, "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(cruxDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	r := &Repo{
		RootDir: path,
		CruxDir: cruxDir,
		Store:   object.NewStore(cruxDir),
		Config:  defaultConfig(),
	}
	if err := r.WriteConfig(r.Config); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return r, nil
}
