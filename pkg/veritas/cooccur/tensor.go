package cooccur

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
	"github.com/cognicore/veritas/pkg/veritas/vocab"
)

// Sample is one tensor slice together with the labels that describe the same
// document. Samples are shuffled as whole records so the slice, the
// supervision and the truth can never drift apart.
type Sample struct {
	Origin      int // position in the fake-then-real input order
	Matrix      *mat.Dense
	Supervision label.Supervision
	Truth       label.Class
}

// Tensor stacks per-document co-occurrence matrices along the third axis.
type Tensor struct {
	size    int
	samples []Sample
}

// NewTensor wraps samples whose matrices are all size×size.
func NewTensor(size int, samples []Sample) (*Tensor, error) {
	for i, s := range samples {
		if s.Matrix == nil {
			return nil, fmt.Errorf("sample %d: nil matrix: %w", i, internalerr.ErrInvalidInput)
		}
		r, c := s.Matrix.Dims()
		if r != size || c != size {
			return nil, fmt.Errorf("sample %d is %dx%d, want %dx%d: %w", i, r, c, size, size, internalerr.ErrInvalidInput)
		}
	}
	return &Tensor{size: size, samples: samples}, nil
}

// Dims returns (|V|, |V|, N).
func (t *Tensor) Dims() (int, int, int) {
	return t.size, t.size, len(t.samples)
}

// Len returns the number of documents.
func (t *Tensor) Len() int {
	return len(t.samples)
}

// Slice returns the k-th frontal slice.
func (t *Tensor) Slice(k int) mat.Matrix {
	return t.samples[k].Matrix
}

// At returns entry (i, j, k).
func (t *Tensor) At(i, j, k int) float64 {
	return t.samples[k].Matrix.At(i, j)
}

// Samples returns a copy of the sample records.
func (t *Tensor) Samples() []Sample {
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Priors returns the numeric FaBP priors in slice order.
func (t *Tensor) Priors() []float64 {
	out := make([]float64, len(t.samples))
	for i, s := range t.samples {
		out[i] = s.Supervision.Prior()
	}
	return out
}

// Truths returns the ground-truth classes in slice order.
func (t *Tensor) Truths() []label.Class {
	out := make([]label.Class, len(t.samples))
	for i, s := range t.samples {
		out[i] = s.Truth
	}
	return out
}

// Builder turns labeled documents into a Tensor.
type Builder struct {
	Vocab  *vocab.Vocabulary
	Window int
	Mode   Mode
	Rand   *rand.Rand
	Logger *zap.Logger
}

type pending struct {
	origin int
	tokens []string
	sup    label.Supervision
	truth  label.Class
}

// BuildTensor concatenates fake then real documents, shuffles them, holds out
// the labels of the first numUnknown shuffled documents, shuffles again and
// stacks the per-document matrices.
func (b *Builder) BuildTensor(fakeDocs, realDocs [][]string, numUnknown int) (*Tensor, error) {
	if b.Vocab == nil {
		return nil, fmt.Errorf("tensor builder: nil vocabulary: %w", internalerr.ErrInvalidInput)
	}
	if b.Window <= 0 {
		return nil, fmt.Errorf("co-occurrence window %d: %w", b.Window, internalerr.ErrConfiguration)
	}
	n := len(fakeDocs) + len(realDocs)
	if numUnknown < 0 || numUnknown > n {
		return nil, fmt.Errorf("num unknown %d outside [0, %d]: %w", numUnknown, n, internalerr.ErrConfiguration)
	}
	rng := b.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	docs := make([]pending, 0, n)
	for _, d := range fakeDocs {
		docs = append(docs, pending{origin: len(docs), tokens: d, truth: label.Fake})
	}
	for _, d := range realDocs {
		docs = append(docs, pending{origin: len(docs), tokens: d, truth: label.Real})
	}

	Shuffle(rng, docs)
	for i := range docs {
		if i < numUnknown {
			docs[i].sup = label.Unknown()
		} else {
			docs[i].sup = label.Known(docs[i].truth)
		}
	}
	Shuffle(rng, docs)

	samples := make([]Sample, len(docs))
	for i, d := range docs {
		m, err := BuildMatrix(b.Vocab, d.tokens, b.Window, b.Mode)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", d.origin, err)
		}
		samples[i] = Sample{
			Origin:      d.origin,
			Matrix:      m,
			Supervision: d.sup,
			Truth:       d.truth,
		}
	}

	logger.Debug("built co-occurrence tensor",
		zap.Int("vocab_size", b.Vocab.Size()),
		zap.Int("documents", n),
		zap.Int("held_out", numUnknown),
		zap.Int("window", b.Window),
	)
	return &Tensor{size: b.Vocab.Size(), samples: samples}, nil
}

// Shuffle permutes records in place using rng. Because each record carries all
// of its parallel fields, the permutation is joint by construction.
func Shuffle[T any](rng *rand.Rand, records []T) {
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
}
