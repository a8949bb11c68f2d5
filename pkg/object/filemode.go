package object

import (
	"fmt"
	"io/fs"
	"strconv"
)

// FileMode is a packed file mode using Git's canonical octal values. The
// zero value means the slot is missing.
type FileMode uint32

const (
	ModeMissing    FileMode = 0
	ModeTree       FileMode = 0o040000
	ModeFile       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeGitlink    FileMode = 0o160000
)

// IsTree reports whether m is a directory mode.
func (m FileMode) IsTree() bool { return m&0o170000 == ModeTree }

// NonTree reports whether m is present and not a directory.
func (m FileMode) NonTree() bool { return m != ModeMissing && !m.IsTree() }

// IsGitlink reports whether m points at a nested repository.
func (m FileMode) IsGitlink() bool { return m&0o170000 == ModeGitlink }

// IsRegular reports whether m is a regular (possibly executable) file.
func (m FileMode) IsRegular() bool { return m&0o170000 == 0o100000 }

// IsSymlink reports whether m is a symbolic link.
func (m FileMode) IsSymlink() bool { return m&0o170000 == ModeSymlink }

// Perm returns the filesystem permission bits used when materialising a
// file with this mode.
func (m FileMode) Perm() fs.FileMode {
	if m == ModeExecutable {
		return 0o755
	}
	return 0o644
}

// String renders the mode as Git's octal mode string ("100644", "40000").
func (m FileMode) String() string {
	return strconv.FormatUint(uint64(m), 8)
}

// ParseMode parses an octal mode string produced by String.
func ParseMode(s string) (FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return ModeMissing, fmt.Errorf("parse mode %q: %w", s, err)
	}
	m := FileMode(v)
	switch m & 0o170000 {
	case ModeTree, 0o100000, ModeSymlink, ModeGitlink:
		return m, nil
	}
	if m == ModeMissing {
		return ModeMissing, nil
	}
	return ModeMissing, fmt.Errorf("parse mode %q: unknown kind", s)
}

// MarshalJSON renders the mode as its octal string.
func (m FileMode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON parses the octal string form.
func (m *FileMode) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal mode: %w", err)
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ModeFromFileInfo maps a stat result onto a packed mode.
func ModeFromFileInfo(info fs.FileInfo) FileMode {
	switch {
	case info.IsDir():
		return ModeTree
	case info.Mode()&fs.ModeSymlink != 0:
		return ModeSymlink
	case info.Mode()&0o111 != 0:
		return ModeExecutable
	default:
		return ModeFile
	}
}
