package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration covers inputs rejected before the pipeline runs:
	// knn_k >= N, non-positive window, oversized sample requests.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDecomposition is returned when the CP decomposition does not converge
	// (strict mode) or produces non-finite factors.
	ErrDecomposition = errors.New("decomposition failed")

	// ErrSingularSystem is returned when the FaBP system matrix is singular
	// or too ill-conditioned to trust the solution.
	ErrSingularSystem = errors.New("singular belief propagation system")
)
