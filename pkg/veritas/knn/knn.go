// Package knn builds sparse k-nearest-neighbor similarity graphs over
// document embeddings.
package knn

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
)

// Metric selects how embedding rows are compared.
type Metric int

const (
	// Cosine weighs an edge by (1 + cos θ)/2, which lies in [0, 1].
	Cosine Metric = iota
	// Euclidean weighs an edge by 1/(1 + ‖x − y‖).
	Euclidean
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// ParseMetric converts "cosine" or "euclidean" to a Metric. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "euclidean":
		return Euclidean, nil
	}
	return 0, fmt.Errorf("unknown knn metric %q: %w", s, internalerr.ErrConfiguration)
}

// Similarity returns the edge weight between two embedding rows.
func (m Metric) Similarity(x, y []float64) float64 {
	if m == Euclidean {
		return 1 / (1 + floats.Distance(x, y, 2))
	}
	nx, ny := floats.Norm(x, 2), floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0.5
	}
	return (1 + floats.Dot(x, y)/(nx*ny)) / 2
}

// Graph is a symmetric weighted kNN graph. It never holds self-loops; those
// are added when the adjacency is materialised for the solver.
type Graph struct {
	g         *simple.WeightedUndirectedGraph
	n         int
	outDegree []int
}

type candidate struct {
	j int
	w float64
}

// Build connects every row of embeddings to its k most similar other rows
// (ties go to the lower row index). Directed edges (i→j) and (j→i) are merged
// into one undirected edge that keeps the larger of the two weights.
//
// The caller guarantees k < N; a larger k is clamped to N−1.
func Build(embeddings mat.Matrix, k int, metric Metric) (*Graph, error) {
	if k <= 0 {
		return nil, fmt.Errorf("knn k %d: %w", k, internalerr.ErrConfiguration)
	}
	if metric != Cosine && metric != Euclidean {
		return nil, fmt.Errorf("knn %v: %w", metric, internalerr.ErrConfiguration)
	}
	n, _ := embeddings.Dims()
	if n == 0 {
		return nil, fmt.Errorf("knn: empty embedding matrix: %w", internalerr.ErrInvalidInput)
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, embeddings)
	}

	g := &Graph{
		g:         simple.NewWeightedUndirectedGraph(0, 0),
		n:         n,
		outDegree: make([]int, n),
	}
	for i := 0; i < n; i++ {
		g.g.AddNode(simple.Node(i))
	}

	limit := min(k, n-1)
	cands := make([]candidate, 0, n-1)
	for i := 0; i < n; i++ {
		cands = cands[:0]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			cands = append(cands, candidate{j: j, w: metric.Similarity(rows[i], rows[j])})
		}
		sort.SliceStable(cands, func(a, b int) bool {
			return cands[a].w > cands[b].w
		})
		for _, c := range cands[:limit] {
			g.link(i, c.j, c.w)
		}
		g.outDegree[i] = limit
	}
	return g, nil
}

func (g *Graph) link(i, j int, w float64) {
	if old, ok := g.g.Weight(int64(i), int64(j)); ok && old >= w {
		return
	}
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(i), simple.Node(j), w))
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return g.n
}

// OutDegree returns how many neighbors node i selected before symmetrization.
func (g *Graph) OutDegree(i int) int {
	return g.outDegree[i]
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	return g.g.Edges().Len()
}

// Weight returns the weight of edge (i, j), or 0 when absent.
func (g *Graph) Weight(i, j int) float64 {
	if i == j || !g.g.HasEdgeBetween(int64(i), int64(j)) {
		return 0
	}
	w, _ := g.g.Weight(int64(i), int64(j))
	return w
}

// Neighbors returns the sorted neighbor indices of node i.
func (g *Graph) Neighbors(i int) []int {
	var out []int
	it := g.g.From(int64(i))
	for it.Next() {
		out = append(out, int(it.Node().ID()))
	}
	sort.Ints(out)
	return out
}

// Adjacency returns the dense symmetric adjacency matrix with selfLoop on the
// diagonal.
func (g *Graph) Adjacency(selfLoop float64) *mat.SymDense {
	a := mat.NewSymDense(g.n, nil)
	edges := g.g.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		a.SetSym(int(e.From().ID()), int(e.To().ID()), e.Weight())
	}
	for i := 0; i < g.n; i++ {
		a.SetSym(i, i, selfLoop)
	}
	return a
}
