package merge

import (
	"testing"

	"github.com/cruxvc/crux/pkg/object"
)

func TestMergeModes(t *testing.T) {
	tests := []struct {
		name          string
		base, o, th   object.FileMode
		want          object.FileMode
	}{
		{"all equal", object.ModeFile, object.ModeFile, object.ModeFile, object.ModeFile},
		{"sides agree", object.ModeFile, object.ModeExecutable, object.ModeExecutable, object.ModeExecutable},
		{"theirs changed", object.ModeFile, object.ModeFile, object.ModeExecutable, object.ModeExecutable},
		{"ours changed", object.ModeFile, object.ModeExecutable, object.ModeFile, object.ModeExecutable},
		{"theirs deleted", object.ModeFile, object.ModeFile, object.ModeMissing, object.ModeFile},
		{"ours deleted", object.ModeFile, object.ModeMissing, object.ModeFile, object.ModeFile},
		{"both changed differently", object.ModeFile, object.ModeExecutable, object.ModeSymlink, object.ModeMissing},
		{"added differently", object.ModeMissing, object.ModeFile, object.ModeExecutable, object.ModeMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeModes(tt.base, tt.o, tt.th); got != tt.want {
				t.Errorf("MergeModes(%v, %v, %v) = %v, want %v", tt.base, tt.o, tt.th, got, tt.want)
			}
		})
	}
}

// MergeModes must not care which side is which when the base is fixed.
func TestMergeModes_CommutativeInSides(t *testing.T) {
	modes := []object.FileMode{
		object.ModeMissing,
		object.ModeFile,
		object.ModeExecutable,
		object.ModeSymlink,
		object.ModeGitlink,
	}
	for _, b := range modes {
		for _, o := range modes {
			for _, th := range modes {
				ab := MergeModes(b, o, th)
				ba := MergeModes(b, th, o)
				if ab != ba {
					t.Errorf("MergeModes(%v, %v, %v)=%v but swapped gives %v", b, o, th, ab, ba)
				}
			}
		}
	}
}
