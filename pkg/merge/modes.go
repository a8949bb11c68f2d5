package merge

import "github.com/cruxvc/crux/pkg/object"

// MergeModes merges the three file modes of a path. When ours and theirs
// agree, that mode wins. When only one side changed the mode, the changed
// side wins unless it deleted the entry and the other side still has one.
// Anything else is a mode conflict, reported as ModeMissing.
func MergeModes(base, ours, theirs object.FileMode) object.FileMode {
	if ours == theirs {
		return ours
	}
	if base == ours {
		if theirs != object.ModeMissing {
			return theirs
		}
		return ours
	}
	if base == theirs {
		if ours != object.ModeMissing {
			return ours
		}
		return theirs
	}
	return object.ModeMissing
}
