package object

import "testing"

func TestFileMode_Predicates(t *testing.T) {
	tests := []struct {
		mode                                 FileMode
		isTree, nonTree, regular, link, gitl bool
	}{
		{ModeMissing, false, false, false, false, false},
		{ModeTree, true, false, false, false, false},
		{ModeFile, false, true, true, false, false},
		{ModeExecutable, false, true, true, false, false},
		{ModeSymlink, false, true, false, true, false},
		{ModeGitlink, false, true, false, false, true},
	}
	for _, tt := range tests {
		if tt.mode.IsTree() != tt.isTree {
			t.Errorf("%v.IsTree() = %v", tt.mode, tt.mode.IsTree())
		}
		if tt.mode.NonTree() != tt.nonTree {
			t.Errorf("%v.NonTree() = %v", tt.mode, tt.mode.NonTree())
		}
		if tt.mode.IsRegular() != tt.regular {
			t.Errorf("%v.IsRegular() = %v", tt.mode, tt.mode.IsRegular())
		}
		if tt.mode.IsSymlink() != tt.link {
			t.Errorf("%v.IsSymlink() = %v", tt.mode, tt.mode.IsSymlink())
		}
		if tt.mode.IsGitlink() != tt.gitl {
			t.Errorf("%v.IsGitlink() = %v", tt.mode, tt.mode.IsGitlink())
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []FileMode{ModeTree, ModeFile, ModeExecutable, ModeSymlink, ModeGitlink} {
		parsed, err := ParseMode(mode.String())
		if err != nil {
			t.Errorf("ParseMode(%q): %v", mode.String(), err)
			continue
		}
		if parsed != mode {
			t.Errorf("ParseMode(%q) = %v, want %v", mode.String(), parsed, mode)
		}
	}

	if _, err := ParseMode("777777"); err == nil {
		t.Errorf("unknown mode kind accepted")
	}
	if _, err := ParseMode("not-octal"); err == nil {
		t.Errorf("non-octal mode accepted")
	}
}

func TestFileMode_Strings(t *testing.T) {
	if got := ModeFile.String(); got != "100644" {
		t.Errorf("ModeFile.String() = %q", got)
	}
	if got := ModeTree.String(); got != "40000" {
		t.Errorf("ModeTree.String() = %q", got)
	}
	if got := ModeSymlink.String(); got != "120000" {
		t.Errorf("ModeSymlink.String() = %q", got)
	}
}

func TestFileMode_Perm(t *testing.T) {
	if ModeExecutable.Perm() != 0o755 {
		t.Errorf("executable perm = %o", ModeExecutable.Perm())
	}
	if ModeFile.Perm() != 0o644 {
		t.Errorf("file perm = %o", ModeFile.Perm())
	}
}
