package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_Defaults(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	labels := r.Config.MergeLabels()
	if labels != [3]string{"BASE", "OURS", "THEIRS"} {
		t.Errorf("default labels = %v", labels)
	}
	if r.Config.User.Name == "" {
		t.Errorf("default user name is empty")
	}
}

func TestConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	r.Config.User.Name = "someone"
	r.Config.Merge.Labels = []string{"ancestor", "mine", "incoming"}
	if err := r.WriteConfig(r.Config); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Config.User.Name != "someone" {
		t.Errorf("user name = %q", reopened.Config.User.Name)
	}
	if labels := reopened.Config.MergeLabels(); labels != [3]string{"ancestor", "mine", "incoming"} {
		t.Errorf("labels = %v", labels)
	}
}

func TestConfig_PartialLabelsFallBack(t *testing.T) {
	cfg := &Config{Merge: MergeConfig{Labels: []string{"", "mine"}}}
	labels := cfg.MergeLabels()
	if labels != [3]string{"BASE", "mine", "THEIRS"} {
		t.Errorf("labels = %v", labels)
	}
}

func TestConfig_MissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := os.Remove(filepath.Join(r.CruxDir, "config.toml")); err != nil {
		t.Fatalf("remove config: %v", err)
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.MergeLabels() != [3]string{"BASE", "OURS", "THEIRS"} {
		t.Errorf("labels = %v", cfg.MergeLabels())
	}
}
