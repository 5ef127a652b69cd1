package core

import "fmt"

// A Handle names a live instance in a client's table. Handles are plain
// values and stay cheap to copy; a handle that outlives its instance is
// detected at lookup time because slot reuse assigns a fresh instance id.
type Handle struct {
	Slot int
	ID   uint64
}

// Valid reports whether the handle could ever name an instance. Instance
// ids start at 1, so the zero Handle is never valid.
func (h Handle) Valid() bool {
	return h.Slot >= 0 && h.ID > 0
}

func (h Handle) String() string {
	return fmt.Sprintf("instance-%d@%d", h.ID, h.Slot)
}
