package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config stores repository-local settings.
type Config struct {
	User  UserConfig  `toml:"user"`
	Merge MergeConfig `toml:"merge"`
}

// UserConfig identifies the committing user.
type UserConfig struct {
	Name string `toml:"name"`
}

// MergeConfig controls merge behaviour.
type MergeConfig struct {
	// Labels written into conflict markers, in base/ours/theirs order.
	Labels []string `toml:"labels"`
}

func defaultConfig() *Config {
	return &Config{
		User:  UserConfig{Name: "crux"},
		Merge: MergeConfig{Labels: []string{"BASE", "OURS", "THEIRS"}},
	}
}

// MergeLabels returns the configured conflict-marker labels, falling back
// to BASE/OURS/THEIRS for missing entries.
func (c *Config) MergeLabels() [3]string {
	labels := [3]string{"BASE", "OURS", "THEIRS"}
	if c == nil {
		return labels
	}
	for i := 0; i < len(labels) && i < len(c.Merge.Labels); i++ {
		if c.Merge.Labels[i] != "" {
			labels[i] = c.Merge.Labels[i]
		}
	}
	return labels
}

func (r *Repo) configPath() string {
	return filepath.Join(r.CruxDir, "config.toml")
}

// ReadConfig reads .crux/config.toml. A missing file yields the defaults.
func (r *Repo) ReadConfig() (*Config, error) {
	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read config: unmarshal: %w", err)
	}
	return cfg, nil
}

// WriteConfig atomically writes .crux/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = defaultConfig()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.CruxDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
