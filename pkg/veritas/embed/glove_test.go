package embed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
)

const sampleVectors = `the 0.1 0.2 0.3
hoax 1 0 -1
news -1 0.5 2

senate 0 0 1
`

func TestLoad(t *testing.T) {
	w, err := Load(strings.NewReader(sampleVectors), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, w.Dim())
	assert.Equal(t, 4, w.Len())
	v, ok := w.Vector("news")
	require.True(t, ok)
	assert.Equal(t, []float64{-1, 0.5, 2}, v)
	_, ok = w.Vector("missing")
	assert.False(t, ok)
}

func TestLoadKeepFilter(t *testing.T) {
	keep := map[string]bool{"hoax": true, "news": true}
	w, err := Load(strings.NewReader(sampleVectors), func(word string) bool { return keep[word] })
	require.NoError(t, err)

	assert.Equal(t, 3, w.Dim(), "dimension comes from the first line even when filtered out")
	assert.Equal(t, 2, w.Len())
}

func TestLoadSkipsHeader(t *testing.T) {
	w, err := Load(strings.NewReader("2 3\nfake 1 2 3\nreal 4 5 6\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, w.Dim())
	assert.Equal(t, 2, w.Len())
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"ragged":        "a 1 2\nb 1\n",
		"bad component": "a 1 x\n",
		"word only":     "a\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(input), nil)
			assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glove.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleVectors), 0o644))

	w, err := LoadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.txt"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMean(t *testing.T) {
	w, err := New(2, map[string][]float64{
		"lie":  {1, 3},
		"fact": {3, -1},
	})
	require.NoError(t, err)

	v, hits := w.Mean([]string{"lie", "unknown", "fact", "lie"})
	assert.Equal(t, 3, hits)
	assert.InDeltaSlice(t, []float64{5.0 / 3, 5.0 / 3}, v, 1e-12)

	v, hits = w.Mean([]string{"nothing", "here"})
	assert.Zero(t, hits)
	assert.Equal(t, []float64{0, 0}, v)
}

func TestNewRejectsBadVectors(t *testing.T) {
	_, err := New(0, nil)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)

	_, err = New(2, map[string][]float64{"a": {1}})
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}
