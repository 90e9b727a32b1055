package decompose

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
)

// Default ALS settings.
const (
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 100
	DefaultRidge         = 1e-9
)

// ALS is a CP decomposition by alternating least squares. Each sweep solves
// the R×R normal equations for one factor with the other two fixed.
//
// Results depend on Rand; with a fixed seed they are reproducible.
type ALS struct {
	Tolerance     float64 // stop when the fit changes by less than this
	MaxIterations int
	Ridge         float64 // diagonal loading, relative to the Gram trace
	Strict        bool    // treat non-convergence as ErrDecomposition
	Rand          *rand.Rand
	Logger        *zap.Logger
}

// NewALS returns an ALS decomposer with default settings.
func NewALS(rng *rand.Rand) *ALS {
	return &ALS{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Ridge:         DefaultRidge,
		Rand:          rng,
	}
}

// Decompose implements Decomposer.
func (d *ALS) Decompose(ctx context.Context, t Tensor, rank int) (Factors, error) {
	if rank <= 0 {
		return Factors{}, fmt.Errorf("decomposition rank %d: %w", rank, internalerr.ErrConfiguration)
	}
	ni, nj, nk := t.Dims()
	if ni == 0 || nj == 0 || nk == 0 {
		return Factors{}, fmt.Errorf("empty tensor %dx%dx%d: %w", ni, nj, nk, internalerr.ErrDecomposition)
	}
	maxIter := d.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}

	a := randomFactor(rng, ni, rank)
	b := randomFactor(rng, nj, rank)
	c := randomFactor(rng, nk, rank)

	var normX2 float64
	for k := 0; k < nk; k++ {
		n := mat.Norm(t.Slice(k), 2)
		normX2 += n * n
	}

	res := Factors{}
	prevFit := math.Inf(-1)
	for it := 1; it <= maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return Factors{}, fmt.Errorf("decompose: %w", err)
		}

		var err error
		if a, err = d.solve(hadamard(gram(b), gram(c)), mttkrpRows(t, b, c)); err != nil {
			return Factors{}, fmt.Errorf("update mode-1 factor: %w", err)
		}
		if b, err = d.solve(hadamard(gram(a), gram(c)), mttkrpCols(t, a, c)); err != nil {
			return Factors{}, fmt.Errorf("update mode-2 factor: %w", err)
		}
		if c, err = d.solve(hadamard(gram(a), gram(b)), mttkrpDocs(t, a, b)); err != nil {
			return Factors{}, fmt.Errorf("update document factor: %w", err)
		}

		for _, f := range []*mat.Dense{a, b, c} {
			if !finite(f) {
				return Factors{}, fmt.Errorf("iteration %d produced non-finite factors: %w", it, internalerr.ErrDecomposition)
			}
		}

		fit := 1.0
		if normX2 > 0 {
			model := Factors{A: a, B: b, Docs: c}
			fit = 1 - math.Sqrt(residual(t, model))/math.Sqrt(normX2)
		}
		res.Iterations = it
		res.Fit = fit

		if normX2 == 0 || (it > 1 && math.Abs(fit-prevFit) < d.Tolerance) {
			res.Converged = true
			break
		}
		prevFit = fit
	}

	logger.Debug("cp decomposition finished",
		zap.Int("rank", rank),
		zap.Int("iterations", res.Iterations),
		zap.Float64("fit", res.Fit),
		zap.Bool("converged", res.Converged),
	)
	if !res.Converged && d.Strict {
		return Factors{}, fmt.Errorf("no convergence after %d iterations (fit %.6f): %w",
			res.Iterations, res.Fit, internalerr.ErrDecomposition)
	}

	res.A, res.B, res.Docs = a, b, c
	return res, nil
}

// solve returns F with F·V = M, i.e. F = M·V⁻¹ for the symmetric Gram product V.
func (d *ALS) solve(v *mat.Dense, m *mat.Dense) (*mat.Dense, error) {
	r, _ := v.Dims()
	if d.Ridge > 0 {
		load := d.Ridge * mat.Trace(v) / float64(r)
		if load == 0 {
			load = d.Ridge
		}
		for i := 0; i < r; i++ {
			v.Set(i, i, v.At(i, i)+load)
		}
	}

	var lu mat.LU
	lu.Factorize(v)
	var x mat.Dense
	if err := lu.SolveTo(&x, false, m.T()); err != nil {
		return nil, fmt.Errorf("normal equations: %v: %w", err, internalerr.ErrDecomposition)
	}
	return mat.DenseCopyOf(x.T()), nil
}

// residual returns ||X - X̂||², computed slice by slice to avoid the
// cancellation of the expanded-norm formula near a perfect fit.
func residual(t Tensor, f Factors) float64 {
	_, _, nk := t.Dims()
	var sum float64
	var diff mat.Dense
	for k := 0; k < nk; k++ {
		diff.Sub(t.Slice(k), f.Reconstruct(k))
		n := mat.Norm(&diff, 2)
		sum += n * n
	}
	return sum
}

func randomFactor(rng *rand.Rand, rows, rank int) *mat.Dense {
	data := make([]float64, rows*rank)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(rows, rank, data)
}

func gram(f *mat.Dense) *mat.Dense {
	var g mat.Dense
	g.Mul(f.T(), f)
	return &g
}

func hadamard(x, y *mat.Dense) *mat.Dense {
	var h mat.Dense
	h.MulElem(x, y)
	return &h
}

// mttkrpRows computes X₍₁₎(C ⊙ B) = Σ_k X_k·B·diag(C[k,:]).
func mttkrpRows(t Tensor, b, c *mat.Dense) *mat.Dense {
	ni, _, nk := t.Dims()
	_, r := b.Dims()
	out := mat.NewDense(ni, r, nil)
	var p mat.Dense
	for k := 0; k < nk; k++ {
		p.Mul(t.Slice(k), b)
		accumulateScaled(out, &p, c, k)
	}
	return out
}

// mttkrpCols computes X₍₂₎(C ⊙ A) = Σ_k X_kᵀ·A·diag(C[k,:]).
func mttkrpCols(t Tensor, a, c *mat.Dense) *mat.Dense {
	_, nj, nk := t.Dims()
	_, r := a.Dims()
	out := mat.NewDense(nj, r, nil)
	var p mat.Dense
	for k := 0; k < nk; k++ {
		p.Mul(t.Slice(k).T(), a)
		accumulateScaled(out, &p, c, k)
	}
	return out
}

// mttkrpDocs computes X₍₃₎(B ⊙ A): row k holds Σ_i A[i,r]·(X_k·B)[i,r].
func mttkrpDocs(t Tensor, a, b *mat.Dense) *mat.Dense {
	_, _, nk := t.Dims()
	ni, r := a.Dims()
	out := mat.NewDense(nk, r, nil)
	var p mat.Dense
	for k := 0; k < nk; k++ {
		p.Mul(t.Slice(k), b)
		for col := 0; col < r; col++ {
			var s float64
			for i := 0; i < ni; i++ {
				s += a.At(i, col) * p.At(i, col)
			}
			out.Set(k, col, s)
		}
	}
	return out
}

func accumulateScaled(dst, p, c *mat.Dense, k int) {
	rows, r := p.Dims()
	for i := 0; i < rows; i++ {
		for col := 0; col < r; col++ {
			dst.Set(i, col, dst.At(i, col)+p.At(i, col)*c.At(k, col))
		}
	}
}

func finite(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
