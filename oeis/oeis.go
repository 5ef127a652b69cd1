// Package oeis provides the A000081 rooted-tree enumeration that constrains
// every DTESN structure: membrane counts per depth and B-series tree counts
// per order must match the sequence exactly.
package oeis

import (
	"errors"
	"fmt"
)

// a000081 counts unlabeled rooted trees with n nodes. The table covers every
// depth and order the runtime accepts; indexes beyond it are rejected, never
// computed on the fly.
var a000081 = [...]uint32{
	0, 1, 1, 2, 4, 9, 20, 48, 115, 286, 719, 1842, 4766, 12486, 32973, 86810,
}

// ErrOutOfRange is returned when an index falls outside the enumeration table.
var ErrOutOfRange = errors.New("index outside A000081 table")

// ErrViolation is returned when an observed structure count contradicts the
// enumeration.
var ErrViolation = errors.New("A000081 violation")

// TableLen returns the number of entries in the enumeration table.
func TableLen() int {
	return len(a000081)
}

// CountFor returns the number of unlabeled rooted trees with n nodes.
func CountFor(n uint32) (uint32, error) {
	if n >= uint32(len(a000081)) {
		return 0, fmt.Errorf("%w: %d (table holds %d entries)",
			ErrOutOfRange, n, len(a000081))
	}

	return a000081[n], nil
}

// Validate checks an observed structure count against the enumeration.
func Validate(n, observed uint32) error {
	want, err := CountFor(n)
	if err != nil {
		return err
	}

	if observed != want {
		return fmt.Errorf("%w: n=%d expects %d rooted trees, observed %d",
			ErrViolation, n, want, observed)
	}

	return nil
}
