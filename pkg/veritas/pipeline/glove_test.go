package pipeline

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cognicore/veritas/internal/logger"
	"github.com/cognicore/veritas/pkg/veritas/config"
	"github.com/cognicore/veritas/pkg/veritas/embed"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

func gloveConfig(path string) config.Config {
	cfg := toyConfig()
	cfg.Embedding = config.EmbeddingConfig{Method: config.MethodGloVe, GloVePath: path}
	return cfg
}

func newGloVePipeline(t *testing.T, cfg config.Config, seed uint64, opts ...Option) *Pipeline {
	t.Helper()
	require.NoError(t, cfg.Validate())
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(seed, seed+1)))}, opts...)
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

func toyVectors(t *testing.T) *embed.WordVectors {
	t.Helper()
	w, err := embed.New(2, map[string][]float64{
		"lie":  {1, 0},
		"fact": {0, 1},
	})
	require.NoError(t, err)
	return w
}

func TestPrepareGloVe(t *testing.T) {
	p := newGloVePipeline(t, gloveConfig("unused.txt"), 3, WithWordVectors(toyVectors(t)))
	fakeDocs, realDocs := toyCorpus()

	ds, err := p.Prepare(context.Background(), fakeDocs, realDocs)
	require.NoError(t, err)

	assert.Equal(t, config.MethodGloVe, ds.Method)
	assert.Nil(t, ds.Vocab)
	require.Len(t, ds.Nodes, 4)

	unknown := 0
	for _, nd := range ds.Nodes {
		want := []float64{1, 0}
		if nd.Truth == label.Real {
			want = []float64{0, 1}
		}
		assert.Equal(t, want, nd.Embedding, "origin %d", nd.Origin)
		if _, known := nd.Supervision.Class(); !known {
			unknown++
		}
	}
	assert.Equal(t, 1, unknown)
}

func TestRunGloVeRecoversHeldOutLabel(t *testing.T) {
	for seed := uint64(0); seed < 5; seed++ {
		p := newGloVePipeline(t, gloveConfig("unused.txt"), seed, WithWordVectors(toyVectors(t)))
		fakeDocs, realDocs := toyCorpus()

		ds, err := p.Prepare(context.Background(), fakeDocs, realDocs)
		require.NoError(t, err)
		res, err := p.Run(context.Background(), ds)
		require.NoError(t, err)

		assert.Equal(t, 1.0, res.Scores.Accuracy, "seed %d", seed)
		assert.Equal(t, 2, res.Edges, "seed %d", seed)
	}
}

func TestPrepareGloVeLoadsFilteredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glove.txt")
	require.NoError(t, os.WriteFile(path, []byte("lie 1 0\nfact 0 1\nhoax 5 5\nsenate 3 1\n"), 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	p := newGloVePipeline(t, gloveConfig(path), 7, WithLogger(zap.New(core)))
	fakeDocs, realDocs := toyCorpus()

	ds, err := p.Prepare(context.Background(), fakeDocs, realDocs)
	require.NoError(t, err)
	assert.Equal(t, config.MethodGloVe, ds.Method)
	loaded := logs.FilterMessage("loaded word vectors").All()
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(2), loaded[0].ContextMap()["words"], "only body words of the corpus are kept")

	res, err := p.Sweep(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, config.MethodGloVe, res.Method)
	acc, ok := res.cell(75, 1, MetricAccuracy)
	require.True(t, ok)
	assert.Equal(t, 1.0, acc.Mean)
}

func TestPrepareGloVeMissingFile(t *testing.T) {
	p := newGloVePipeline(t, gloveConfig(filepath.Join(t.TempDir(), "absent.txt")), 1)
	fakeDocs, realDocs := toyCorpus()

	_, err := p.Prepare(context.Background(), fakeDocs, realDocs)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSweepLogsTrialFieldsFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ContextWithLogger(context.Background(), zap.New(core))

	p := newToyPipeline(t, 5)
	fakeDocs, realDocs := toyCorpus()
	ds, err := p.Prepare(ctx, fakeDocs, realDocs)
	require.NoError(t, err)
	_, err = p.Sweep(ctx, ds)
	require.NoError(t, err)

	trials := logs.FilterMessage("trial finished").All()
	require.Len(t, trials, 3, "one entry per trial and neighbour count")
	for _, e := range trials {
		fields := e.ContextMap()
		assert.Equal(t, config.MethodDecomposition, fields["method"])
		assert.Equal(t, 75.0, fields["percentage"])
		assert.Contains(t, fields, "trial")
		assert.Equal(t, int64(1), fields["k"])
	}
	assert.NotEmpty(t, logs.FilterMessage("built tensor").All(), "prepare logs through the context logger")
}
