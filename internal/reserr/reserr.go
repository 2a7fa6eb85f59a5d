// Package reserr defines the error kinds shared by the grid, summary and
// selection packages.
//
// Every kind is a sentinel. Call sites wrap it with context using %w so that
// callers can branch with errors.Is while logs still carry the offending
// index, name or length. None of these conditions is retried or recovered
// internally: each one signals a caller-side mistake.
package reserr

import "errors"

var (
	// ErrOutOfRange reports a coordinate or index outside its valid bounds.
	ErrOutOfRange = errors.New("index out of range")

	// ErrInactiveCell reports a valid coordinate whose cell carries no
	// active-cell data (inactive, or refined by an LGR).
	ErrInactiveCell = errors.New("inactive cell")

	// ErrUnknownVector reports a summary vector name not present in the store.
	ErrUnknownVector = errors.New("unknown summary vector")

	// ErrLengthMismatch reports a caller array whose length does not match
	// the expected cardinality.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrInsufficientData reports an operation undefined for too few samples.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrEmptySelection reports an aggregate undefined over zero cells.
	ErrEmptySelection = errors.New("empty selection")

	// ErrMalformed reports loader input that cannot form a valid grid or
	// summary store. Loads that fail with it leave nothing behind.
	ErrMalformed = errors.New("malformed input")

	// ErrUnknownCase reports a case handle that is not open.
	ErrUnknownCase = errors.New("unknown case")

	// ErrClosed reports use of a case after Close.
	ErrClosed = errors.New("case closed")
)

var kinds = []error{
	ErrOutOfRange, ErrInactiveCell, ErrUnknownVector, ErrLengthMismatch,
	ErrInsufficientData, ErrEmptySelection, ErrMalformed, ErrUnknownCase, ErrClosed,
}

// Kind returns the sentinel that err wraps, or nil when err carries none of
// the kinds above. Transport layers use it to pick a status code.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// FromText returns the sentinel whose Error text is s, or nil. Clients use it
// to restore a kind sent over the wire as text.
func FromText(s string) error {
	for _, k := range kinds {
		if k.Error() == s {
			return k
		}
	}
	return nil
}
