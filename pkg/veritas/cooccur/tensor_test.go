package cooccur

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

// corpus returns documents whose first token identifies them ("doc0", "doc1", ...).
func corpus(fake, real int) ([][]string, [][]string) {
	var f, r [][]string
	for i := 0; i < fake+real; i++ {
		doc := []string{"doc" + strconv.Itoa(i), "shared", "word" + strconv.Itoa(i%3)}
		if i < fake {
			f = append(f, doc)
		} else {
			r = append(r, doc)
		}
	}
	return f, r
}

func TestBuildTensorShapeAndLabels(t *testing.T) {
	fake, real := corpus(3, 4)
	v := freeze(append(append([][]string{}, fake...), real...)...)
	b := &Builder{Vocab: v, Window: 2, Rand: rand.New(rand.NewPCG(1, 2))}

	tensor, err := b.BuildTensor(fake, real, 2)
	if err != nil {
		t.Fatalf("BuildTensor: %v", err)
	}
	i, j, k := tensor.Dims()
	if i != v.Size() || j != v.Size() || k != 7 {
		t.Fatalf("dims = (%d,%d,%d)", i, j, k)
	}

	unknown, fakes := 0, 0
	for _, s := range tensor.Samples() {
		if !s.Supervision.IsKnown() {
			unknown++
		} else if c, _ := s.Supervision.Class(); c != s.Truth {
			t.Errorf("known supervision %v disagrees with truth %v", c, s.Truth)
		}
		if s.Truth == label.Fake {
			fakes++
		}
	}
	if unknown != 2 {
		t.Errorf("expected 2 held-out samples, got %d", unknown)
	}
	if fakes != 3 {
		t.Errorf("expected 3 fake samples, got %d", fakes)
	}

	priors := tensor.Priors()
	truths := tensor.Truths()
	for idx := range priors {
		if priors[idx] != 0 && priors[idx] != truths[idx].Value() {
			t.Errorf("prior %v at %d disagrees with truth %v", priors[idx], idx, truths[idx])
		}
	}
}

func TestBuildTensorSlicesMatchDocuments(t *testing.T) {
	fake, real := corpus(4, 4)
	all := append(append([][]string{}, fake...), real...)
	v := freeze(all...)
	b := &Builder{Vocab: v, Window: 2, Rand: rand.New(rand.NewPCG(7, 7))}

	tensor, err := b.BuildTensor(fake, real, 3)
	if err != nil {
		t.Fatal(err)
	}
	for pos, s := range tensor.Samples() {
		want, err := BuildMatrix(v, all[s.Origin], 2, Frequency)
		if err != nil {
			t.Fatal(err)
		}
		if !mat.Equal(tensor.Slice(pos), want) {
			t.Errorf("slice %d does not match document %d", pos, s.Origin)
		}
		wantTruth := label.Real
		if s.Origin < len(fake) {
			wantTruth = label.Fake
		}
		if s.Truth != wantTruth {
			t.Errorf("slice %d: truth %v, want %v", pos, s.Truth, wantTruth)
		}
	}
}

func TestBuildTensorReproducible(t *testing.T) {
	fake, real := corpus(5, 5)
	v := freeze(append(append([][]string{}, fake...), real...)...)

	order := func() []int {
		b := &Builder{Vocab: v, Window: 2, Rand: rand.New(rand.NewPCG(42, 0))}
		tensor, err := b.BuildTensor(fake, real, 4)
		if err != nil {
			t.Fatal(err)
		}
		var out []int
		for _, s := range tensor.Samples() {
			out = append(out, s.Origin)
		}
		return out
	}
	a, c := order(), order()
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("same seed produced different orders: %v vs %v", a, c)
		}
	}
}

func TestBuildTensorRejectsBadInput(t *testing.T) {
	fake, real := corpus(1, 1)
	v := freeze(fake[0], real[0])

	b := &Builder{Vocab: v, Window: 2}
	if _, err := b.BuildTensor(fake, real, 3); !errors.Is(err, internalerr.ErrConfiguration) {
		t.Errorf("numUnknown > N: expected ErrConfiguration, got %v", err)
	}
	if _, err := b.BuildTensor(fake, real, -1); !errors.Is(err, internalerr.ErrConfiguration) {
		t.Errorf("negative numUnknown: expected ErrConfiguration, got %v", err)
	}
	b.Window = 0
	if _, err := b.BuildTensor(fake, real, 0); !errors.Is(err, internalerr.ErrConfiguration) {
		t.Errorf("zero window: expected ErrConfiguration, got %v", err)
	}
	if _, err := (&Builder{Window: 2}).BuildTensor(fake, real, 0); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("nil vocab: expected ErrInvalidInput, got %v", err)
	}
}

func TestNewTensorValidatesShape(t *testing.T) {
	_, err := NewTensor(2, []Sample{{Matrix: mat.NewDense(3, 3, nil)}})
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for mismatched slice, got %v", err)
	}
	tensor, err := NewTensor(2, []Sample{{Matrix: mat.NewDense(2, 2, []float64{1, 2, 3, 4})}})
	if err != nil {
		t.Fatal(err)
	}
	if tensor.At(1, 0, 0) != 3 {
		t.Errorf("At(1,0,0) = %v, want 3", tensor.At(1, 0, 0))
	}
}

func TestShuffleAlignmentProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("joint shuffles keep slice, supervision and truth aligned", prop.ForAll(
		func(nFake, nReal int, seed uint64, reshuffles int) bool {
			fake, real := corpus(nFake, nReal)
			all := append(append([][]string{}, fake...), real...)
			v := freeze(all...)
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			b := &Builder{Vocab: v, Window: 2, Rand: rng}

			tensor, err := b.BuildTensor(fake, real, (nFake+nReal)/2)
			if err != nil {
				return false
			}
			samples := tensor.Samples()
			for i := 0; i < reshuffles; i++ {
				Shuffle(rng, samples)
			}
			for _, s := range samples {
				// The identifying token of document Origin must co-occur with "shared".
				id := v.Lookup("doc" + strconv.Itoa(s.Origin))
				if s.Matrix.At(id, v.Lookup("shared")) != 1 {
					return false
				}
				wantTruth := label.Real
				if s.Origin < nFake {
					wantTruth = label.Fake
				}
				if s.Truth != wantTruth {
					return false
				}
				if c, ok := s.Supervision.Class(); ok && c != s.Truth {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(1, 6),
		gen.UInt64(),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
