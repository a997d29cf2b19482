package core

import "strconv"

// Cursor is the opaque per-kind watch position (a resourceVersion).
// The zero value means "from the beginning".
type Cursor string

func (c Cursor) IsZero() bool {
	return c == ""
}

func (c Cursor) String() string {
	return string(c)
}

// AtOrBefore reports whether c is known to be at or before other.
// Numeric cursors compare numerically; other non-empty cursors are
// only comparable for equality. Nothing is known about a zero cursor.
func (c Cursor) AtOrBefore(other Cursor) bool {
	if c.IsZero() || other.IsZero() {
		return false
	}
	if c == other {
		return true
	}
	a, okA := c.uint()
	b, okB := other.uint()
	if okA && okB {
		return a <= b
	}
	return false
}

// After reports whether c is known to be strictly after other. A
// non-numeric cursor that differs from other is treated as newer so
// that opaque versions still advance.
func (c Cursor) After(other Cursor) bool {
	if c.IsZero() {
		return false
	}
	if other.IsZero() {
		return true
	}
	if c == other {
		return false
	}
	a, okA := c.uint()
	b, okB := other.uint()
	if okA && okB {
		return a > b
	}
	return true
}

func (c Cursor) uint() (uint64, bool) {
	v, err := strconv.ParseUint(string(c), 10, 64)
	return v, err == nil
}
