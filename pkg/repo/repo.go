package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruxvc/crux/pkg/object"
)

// MetaDirName is the repository metadata directory.
const MetaDirName = ".crux"

// Repo represents an opened crux repository.
type Repo struct {
	RootDir string        // working directory root
	CruxDir string        // .crux/ directory
	Store   *object.Store // content-addressed object store
	Config  *Config
}

// Open searches upward from path for a .crux/ directory and opens the
// repository. Returns an error if none is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		cruxDir := filepath.Join(cur, MetaDirName)
		info, err := os.Stat(cruxDir)
		if err == nil && info.IsDir() {
			r := &Repo{
				RootDir: cur,
				CruxDir: cruxDir,
				Store:   object.NewStore(cruxDir),
			}
			cfg, err := r.ReadConfig()
			if err != nil {
				return nil, err
			}
			r.Config = cfg
			return r, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a crux repository (or any parent up to /)")
		}
		cur = parent
	}
}
