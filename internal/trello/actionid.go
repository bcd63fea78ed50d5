package trello

import "strings"

// ActionID is an opaque, service-assigned action identifier.
//
// Ordering: leading zeros are ignored, case is folded, a shorter id sorts
// before a longer one, equal lengths compare byte-wise. Trello ids are
// fixed-width hex ObjectIds whose leading bytes are the creation time, so
// this is their chronological order; decimal ids sort numerically.
// The empty id (and "0") is the lowest possible value.
type ActionID string

func (id ActionID) norm() string {
	s := strings.ToLower(strings.TrimSpace(string(id)))
	return strings.TrimLeft(s, "0")
}

// IsZero reports whether id is the lowest possible value.
func (id ActionID) IsZero() bool { return id.norm() == "" }

func (id ActionID) String() string { return string(id) }

// Compare returns -1, 0 or +1.
func Compare(a, b ActionID) int {
	na, nb := a.norm(), b.norm()
	switch {
	case len(na) < len(nb):
		return -1
	case len(na) > len(nb):
		return 1
	}
	return strings.Compare(na, nb)
}

// Less reports whether id sorts before other.
func (id ActionID) Less(other ActionID) bool { return Compare(id, other) < 0 }

// MaxID returns the greater of a and b.
func MaxID(a, b ActionID) ActionID {
	if Compare(b, a) > 0 {
		return b
	}
	return a
}
