package cooccur

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/vocab"
)

// Mode selects how neighbor occurrences are recorded.
type Mode int

const (
	// Frequency counts every neighbor occurrence.
	Frequency Mode = iota
	// Boolean records presence only (cell set to 1).
	Boolean
)

// BuildMatrix returns the |V|×|V| co-occurrence matrix of one document.
//
// With half = window/2, the neighbors of the token at position k are the
// tokens at positions [max(0,k-half), k) and (k, min(len,k+1+half)). Each
// visit updates cell [idx(token_k)][idx(neighbor)]. The neighbor relation is
// symmetric, so the result is symmetric as well; no extra symmetrization is
// applied.
func BuildMatrix(v *vocab.Vocabulary, tokens []string, window int, mode Mode) (*mat.Dense, error) {
	if window <= 0 {
		return nil, fmt.Errorf("co-occurrence window %d: %w", window, internalerr.ErrConfiguration)
	}
	n := v.Size()
	m := mat.NewDense(n, n, nil)

	idx := make([]int, len(tokens))
	for i, tok := range tokens {
		idx[i] = v.Lookup(tok)
	}

	half := window / 2
	for k, center := range idx {
		lo := max(0, k-half)
		hi := min(len(idx), k+1+half)
		for p := lo; p < hi; p++ {
			if p == k {
				continue
			}
			nb := idx[p]
			if mode == Boolean {
				m.Set(center, nb, 1)
			} else {
				m.Set(center, nb, m.At(center, nb)+1)
			}
		}
	}
	return m, nil
}
