// Package fabp implements Fast Belief Propagation: a closed-form linearized
// approximation of loopy belief propagation for binary node labels.
//
// Given a symmetric non-negative adjacency A (self-loops included) and a
// prior vector φ with entries in {-1, 0, +1}, the beliefs b solve
//
//	(I + a·D − c·A)·b = φ
//
// where D is the diagonal degree matrix, c = 1/(2 + 2·h·d_max) and
// a = 4·h·c² for homophily strength h. The sign of b_i is the inferred label
// of node i and |b_i| its relative confidence.
//
// The system is positive definite whenever c·λ_max(A) < 1 + a·d_min, which
// holds for every graph once h ≥ 0.5. Smaller h can yield an indefinite
// system on dense graphs; Solve rejects those with ErrSingularSystem.
package fabp

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

// DefaultMaxCondition bounds the condition number of the system matrix.
const DefaultMaxCondition = 1e12

// Solver solves the FaBP linear system.
type Solver struct {
	// Homophily is the strength h used to derive a and c.
	Homophily float64
	// A and C, when set, replace the derived coefficients.
	A, C *float64
	// MaxCondition rejects systems whose condition number exceeds it.
	// Zero means DefaultMaxCondition.
	MaxCondition float64
	Logger       *zap.Logger
}

// Coefficients are the linearization constants used for a solve.
type Coefficients struct {
	A         float64
	C         float64
	MaxDegree float64
}

// Beliefs is the unnormalized belief vector.
type Beliefs []float64

// Classes maps each belief to its sign class (0 maps to Fake).
func (b Beliefs) Classes() []label.Class {
	out := make([]label.Class, len(b))
	for i, v := range b {
		out[i] = label.FromSign(v)
	}
	return out
}

// Coefficients derives (a, c) for adjacency adj, honouring overrides.
func (s *Solver) Coefficients(adj mat.Symmetric) Coefficients {
	deg := degrees(adj)
	var dmax float64
	for _, d := range deg {
		dmax = math.Max(dmax, d)
	}
	return s.coefficients(dmax)
}

func (s *Solver) coefficients(dmax float64) Coefficients {
	c := 1 / (2 + 2*s.Homophily*dmax)
	if s.C != nil {
		c = *s.C
	}
	a := 4 * s.Homophily * c * c
	if s.A != nil {
		a = *s.A
	}
	return Coefficients{A: a, C: c, MaxDegree: dmax}
}

// Solve returns the beliefs for adjacency adj and priors. A system that is
// not positive definite, or whose condition number exceeds MaxCondition,
// fails with ErrSingularSystem.
func (s *Solver) Solve(adj mat.Symmetric, priors []float64) (Beliefs, Coefficients, error) {
	n, _ := adj.Dims()
	if n == 0 {
		return nil, Coefficients{}, fmt.Errorf("fabp: empty graph: %w", internalerr.ErrInvalidInput)
	}
	if len(priors) != n {
		return nil, Coefficients{}, fmt.Errorf("fabp: %d priors for %d nodes: %w", len(priors), n, internalerr.ErrInvalidInput)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			w := adj.At(i, j)
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, Coefficients{}, fmt.Errorf("fabp: adjacency[%d][%d] = %v: %w", i, j, w, internalerr.ErrInvalidInput)
			}
		}
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxCond := s.MaxCondition
	if maxCond <= 0 {
		maxCond = DefaultMaxCondition
	}

	deg := degrees(adj)
	var dmax float64
	for _, d := range deg {
		dmax = math.Max(dmax, d)
	}
	coef := s.coefficients(dmax)

	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := -coef.C * adj.At(i, j)
			if i == j {
				v += 1 + coef.A*deg[i]
			}
			m.SetSym(i, j, v)
		}
	}

	// Indefinite systems anti-propagate labels; only positive definite ones
	// are solved.
	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return nil, coef, fmt.Errorf("fabp: system not positive definite (c·d_max = %g): %w",
			coef.C*dmax, internalerr.ErrSingularSystem)
	}
	cond := chol.Cond()
	if math.IsInf(cond, 0) || math.IsNaN(cond) || cond > maxCond {
		return nil, coef, fmt.Errorf("fabp: condition number %g: %w", cond, internalerr.ErrSingularSystem)
	}

	phi := mat.NewVecDense(n, append([]float64(nil), priors...))
	var b mat.VecDense
	if err := chol.SolveVecTo(&b, phi); err != nil {
		return nil, coef, fmt.Errorf("fabp: %v: %w", err, internalerr.ErrSingularSystem)
	}

	out := make(Beliefs, n)
	for i := range out {
		v := b.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, coef, fmt.Errorf("fabp: non-finite belief at node %d: %w", i, internalerr.ErrSingularSystem)
		}
		out[i] = v
	}

	logger.Debug("fabp solve",
		zap.Int("nodes", n),
		zap.Float64("a", coef.A),
		zap.Float64("c", coef.C),
		zap.Float64("max_degree", dmax),
		zap.Float64("condition", cond),
	)
	return out, coef, nil
}

// degrees returns the weighted row sums of adj.
func degrees(adj mat.Symmetric) []float64 {
	n, _ := adj.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i] += adj.At(i, j)
		}
	}
	return out
}
