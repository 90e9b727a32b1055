// Package embed turns articles into dense vectors by averaging pretrained
// word vectors, as an alternative to the CP document factor.
package embed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
)

// maxLineSize bounds one vector line; 300-d GloVe lines are about 3 KB.
const maxLineSize = 1 << 20

// WordVectors maps words to fixed-dimension vectors.
type WordVectors struct {
	dim     int
	vectors map[string][]float64
}

// New builds WordVectors from an in-memory table. Every vector must have
// length dim.
func New(dim int, vectors map[string][]float64) (*WordVectors, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("word vector dimension %d: %w", dim, internalerr.ErrInvalidInput)
	}
	w := &WordVectors{dim: dim, vectors: make(map[string][]float64, len(vectors))}
	for word, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector for %q has %d components, want %d: %w", word, len(v), dim, internalerr.ErrInvalidInput)
		}
		w.vectors[word] = append([]float64(nil), v...)
	}
	return w, nil
}

// LoadFile reads a GloVe text file. See Load.
func LoadFile(path string, keep func(word string) bool) (*WordVectors, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open word vectors: %w", err)
	}
	defer f.Close()

	w, err := Load(f, keep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Load reads "word v1 v2 ... vD" lines. An optional word2vec-style
// "count dim" header is skipped. When keep is non-nil only words it accepts
// are retained, which keeps multi-gigabyte files out of memory.
func Load(r io.Reader, keep func(word string) bool) (*WordVectors, error) {
	w := &WordVectors{vectors: make(map[string][]float64)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if lineNo == 1 && isHeader(fields) {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: no vector components: %w", lineNo, internalerr.ErrInvalidInput)
		}
		if w.dim == 0 {
			w.dim = len(fields) - 1
		} else if len(fields)-1 != w.dim {
			return nil, fmt.Errorf("line %d: %d components, want %d: %w", lineNo, len(fields)-1, w.dim, internalerr.ErrInvalidInput)
		}

		word := fields[0]
		if keep != nil && !keep(word) {
			continue
		}
		v := make([]float64, w.dim)
		for i, s := range fields[1:] {
			x, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d component %d: %v: %w", lineNo, i, err, internalerr.ErrInvalidInput)
			}
			v[i] = x
		}
		w.vectors[word] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word vectors: %w", err)
	}
	if w.dim == 0 {
		return nil, fmt.Errorf("no word vectors: %w", internalerr.ErrInvalidInput)
	}
	return w, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err != nil {
			return false
		}
	}
	return true
}

// Dim returns the vector dimension.
func (w *WordVectors) Dim() int {
	return w.dim
}

// Len returns the number of words held.
func (w *WordVectors) Len() int {
	return len(w.vectors)
}

// Vector returns the vector for word.
func (w *WordVectors) Vector(word string) ([]float64, bool) {
	v, ok := w.vectors[word]
	return v, ok
}

// Mean averages the vectors of the tokens that have one and reports how
// many did. Tokens without a vector are skipped; with no hits the result is
// the zero vector.
func (w *WordVectors) Mean(tokens []string) ([]float64, int) {
	out := make([]float64, w.dim)
	hits := 0
	for _, t := range tokens {
		if v, ok := w.vectors[t]; ok {
			floats.Add(out, v)
			hits++
		}
	}
	if hits > 0 {
		floats.Scale(1/float64(hits), out)
	}
	return out, hits
}
