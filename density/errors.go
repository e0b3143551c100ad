package density

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a fit that cannot proceed with the given
	// source and options.
	ErrConfiguration = errors.New("density: configuration error")

	// ErrShape reports malformed neighbour-distance input.
	ErrShape = errors.New("density: shape error")
)

// InsufficientDataError is returned by New when the collection does not hold
// more vectors than the estimator neighbourhood.
type InsufficientDataError struct {
	Count        int
	Neighborhood int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("density: collection too small: has %d embeddings, must contain more than %d (the estimator neighborhood)", e.Count, e.Neighborhood)
}

// Is reports ErrConfiguration as a match.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrConfiguration }

// ShapeError describes a malformed distance row. Row is -1 when the problem
// is not tied to a single row.
type ShapeError struct {
	Row    int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Row < 0 {
		return "density: invalid distances: " + e.Reason
	}
	return fmt.Sprintf("density: invalid distances in row %d: %s", e.Row, e.Reason)
}

// Is reports ErrShape as a match.
func (e *ShapeError) Is(target error) bool { return target == ErrShape }
