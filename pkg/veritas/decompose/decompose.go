// Package decompose reduces a third-order co-occurrence tensor to a
// per-document embedding through a canonical polyadic (CP/PARAFAC)
// decomposition.
//
// Callers depend only on the Decomposer interface; ALS is the bundled
// alternating-least-squares implementation.
package decompose

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Tensor is the read-only view a decomposer needs: an I×J×K tensor exposed as
// K frontal slices of shape I×J.
type Tensor interface {
	Dims() (i, j, k int)
	Slice(k int) mat.Matrix
}

// Factors holds the CP factor matrices. X[i,j,k] ≈ Σ_r A[i,r]·B[j,r]·Docs[k,r].
type Factors struct {
	A    *mat.Dense // I×R
	B    *mat.Dense // J×R
	Docs *mat.Dense // K×R, one row per tensor slice

	Iterations int
	Fit        float64 // 1 - ||X - X̂|| / ||X||
	Converged  bool
}

// Decomposer computes a rank-R CP decomposition.
type Decomposer interface {
	Decompose(ctx context.Context, t Tensor, rank int) (Factors, error)
}

// Reconstruct returns the k-th frontal slice of the model, A·diag(Docs[k,:])·Bᵀ.
func (f Factors) Reconstruct(k int) *mat.Dense {
	i, r := f.A.Dims()
	j, _ := f.B.Dims()
	scaled := mat.NewDense(i, r, nil)
	scaled.Apply(func(_, c int, v float64) float64 {
		return v * f.Docs.At(k, c)
	}, f.A)
	out := mat.NewDense(i, j, nil)
	out.Mul(scaled, f.B.T())
	return out
}
