// Package pipeline wires the stages together: vocabulary, co-occurrence
// tensor, CP decomposition (or averaged word vectors), kNN graph, belief
// propagation and scoring.
//
// Methods take their logger from the context when one is attached with
// logger.ContextWithLogger, falling back to the WithLogger option.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/veritas/internal/logger"
	"github.com/cognicore/veritas/internal/telemetry"
	"github.com/cognicore/veritas/pkg/veritas/config"
	"github.com/cognicore/veritas/pkg/veritas/cooccur"
	"github.com/cognicore/veritas/pkg/veritas/corpus"
	"github.com/cognicore/veritas/pkg/veritas/decompose"
	"github.com/cognicore/veritas/pkg/veritas/embed"
	"github.com/cognicore/veritas/pkg/veritas/evaluate"
	"github.com/cognicore/veritas/pkg/veritas/fabp"
	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/knn"
	"github.com/cognicore/veritas/pkg/veritas/label"
	"github.com/cognicore/veritas/pkg/veritas/vocab"
)

// Pipeline runs label inference for one configuration.
type Pipeline struct {
	cfg        config.Config
	logger     *zap.Logger
	rng        *rand.Rand
	decomposer decompose.Decomposer
	telemetry  *telemetry.Recorder
	metric     knn.Metric
	solver     *fabp.Solver
	vectors    *embed.WordVectors
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRand sets the random source. The default is a PCG seeded from
// cfg.Seed.
func WithRand(r *rand.Rand) Option {
	return func(p *Pipeline) { p.rng = r }
}

// WithDecomposer replaces the default ALS decomposer.
func WithDecomposer(d decompose.Decomposer) Option {
	return func(p *Pipeline) { p.decomposer = d }
}

// WithWordVectors supplies the word vectors for the glove method instead of
// reading embedding.glove_path.
func WithWordVectors(w *embed.WordVectors) Option {
	return func(p *Pipeline) { p.vectors = w }
}

// WithTelemetry records stage timings and trial outcomes.
func WithTelemetry(r *telemetry.Recorder) Option {
	return func(p *Pipeline) { p.telemetry = r }
}

// New creates a pipeline for cfg. cfg is expected to have passed Validate.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	metric, err := knn.ParseMetric(cfg.KNNMetric)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, metric: metric}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	if p.decomposer == nil {
		p.decomposer = &decompose.ALS{
			Tolerance:     cfg.Decomposition.Tolerance,
			MaxIterations: cfg.Decomposition.MaxIterations,
			Ridge:         cfg.Decomposition.Ridge,
			Strict:        cfg.Decomposition.Strict,
			Rand:          p.rng,
			Logger:        p.logger.Named("als"),
		}
	}
	p.solver = &fabp.Solver{
		Homophily:    cfg.HomophilyStrength,
		A:            cfg.FaBP.A,
		C:            cfg.FaBP.C,
		MaxCondition: cfg.FaBP.MaxCondition,
		Logger:       p.logger.Named("fabp"),
	}
	return p, nil
}

// Rand returns the pipeline's random source.
func (p *Pipeline) Rand() *rand.Rand {
	return p.rng
}

// Node is one document as seen by the graph stage. The embedding, the
// supervision and the truth travel together through every shuffle.
type Node struct {
	Origin      int
	Embedding   []float64
	Supervision label.Supervision
	Truth       label.Class
}

// Dataset is the embedded corpus. Vocab and Factors are only set by the
// decomposition method.
type Dataset struct {
	Method  string
	Vocab   *vocab.Vocabulary
	Nodes   []Node
	Factors decompose.Factors
}

// Prepare embeds the documents with the configured method and holds out
// num_unknown_labels of them.
func (p *Pipeline) Prepare(ctx context.Context, fakeDocs, realDocs []corpus.Document) (*Dataset, error) {
	if len(fakeDocs)+len(realDocs) == 0 {
		return nil, fmt.Errorf("prepare: no documents: %w", internalerr.ErrInvalidInput)
	}
	ctx = logger.WithFields(ctx, p.logger, zap.String("method", p.method()))
	if p.method() == config.MethodGloVe {
		return p.prepareGloVe(ctx, fakeDocs, realDocs)
	}
	return p.prepareDecomposition(ctx, fakeDocs, realDocs)
}

func (p *Pipeline) method() string {
	if p.cfg.Embedding.Method == "" {
		return config.MethodDecomposition
	}
	return p.cfg.Embedding.Method
}

// prepareDecomposition builds the vocabulary over body and title tokens,
// stacks the body co-occurrence tensor and decomposes it.
func (p *Pipeline) prepareDecomposition(ctx context.Context, fakeDocs, realDocs []corpus.Document) (*Dataset, error) {
	log := logger.FromContext(ctx, p.logger)

	stop := p.telemetry.StartStage(telemetry.StageTensor)
	vb := vocab.NewBuilder()
	for _, docs := range [][]corpus.Document{fakeDocs, realDocs} {
		for _, d := range docs {
			vb.Ingest(d.Tokens)
			vb.Ingest(d.Title)
		}
	}
	order := vocab.ByFrequency
	if p.cfg.VocabOrder == "insertion" {
		order = vocab.ByInsertion
	}
	voc := vb.Freeze(vocab.FreezeOptions{MaxSize: p.cfg.VocabSizeCap, Order: order})

	mode := cooccur.Boolean
	if p.cfg.UseFrequency {
		mode = cooccur.Frequency
	}
	tb := cooccur.Builder{
		Vocab:  voc,
		Window: p.cfg.CoOccurrenceWindow,
		Mode:   mode,
		Rand:   p.rng,
		Logger: log,
	}
	tensor, err := tb.BuildTensor(bodies(fakeDocs), bodies(realDocs), p.cfg.NumUnknownLabels)
	stop()
	if err != nil {
		return nil, fmt.Errorf("build tensor: %w", err)
	}
	log.Info("built tensor",
		zap.Int("distinct_words", vb.Len()),
		zap.Int("vocab_size", voc.Size()),
		zap.Int("documents", tensor.Len()))

	stop = p.telemetry.StartStage(telemetry.StageDecompose)
	factors, err := p.decomposer.Decompose(ctx, tensor, p.cfg.DecompositionRank)
	stop()
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	log.Info("decomposed tensor",
		zap.Int("rank", p.cfg.DecompositionRank),
		zap.Int("iterations", factors.Iterations),
		zap.Float64("fit", factors.Fit),
		zap.Bool("converged", factors.Converged))
	if !factors.Converged {
		log.Warn("decomposition did not converge; using last iterate",
			zap.Int("iterations", factors.Iterations))
	}

	samples := tensor.Samples()
	nodes := make([]Node, len(samples))
	for i, s := range samples {
		nodes[i] = Node{
			Origin:      s.Origin,
			Embedding:   mat.Row(nil, i, factors.Docs),
			Supervision: s.Supervision,
			Truth:       s.Truth,
		}
	}
	return &Dataset{Method: config.MethodDecomposition, Vocab: voc, Nodes: nodes, Factors: factors}, nil
}

// prepareGloVe embeds each document as the mean vector of its body tokens.
// Documents are concatenated fake then real, shuffled, the first
// num_unknown_labels are held out and the nodes are shuffled again.
func (p *Pipeline) prepareGloVe(ctx context.Context, fakeDocs, realDocs []corpus.Document) (*Dataset, error) {
	log := logger.FromContext(ctx, p.logger)
	defer p.telemetry.StartStage(telemetry.StageEmbed)()

	vectors := p.vectors
	if vectors == nil {
		words := make(map[string]bool)
		for _, docs := range [][]corpus.Document{fakeDocs, realDocs} {
			for _, d := range docs {
				for _, t := range d.Tokens {
					words[t] = true
				}
			}
		}
		var err error
		vectors, err = embed.LoadFile(p.cfg.Embedding.GloVePath, func(w string) bool { return words[w] })
		if err != nil {
			return nil, fmt.Errorf("load word vectors: %w", err)
		}
		log.Info("loaded word vectors",
			zap.String("path", p.cfg.Embedding.GloVePath),
			zap.Int("dim", vectors.Dim()),
			zap.Int("words", vectors.Len()))
	}

	nodes := make([]Node, 0, len(fakeDocs)+len(realDocs))
	uncovered := 0
	for _, group := range []struct {
		docs  []corpus.Document
		truth label.Class
	}{{fakeDocs, label.Fake}, {realDocs, label.Real}} {
		for _, d := range group.docs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, hits := vectors.Mean(d.Tokens)
			if hits == 0 {
				uncovered++
			}
			nodes = append(nodes, Node{Origin: len(nodes), Embedding: v, Truth: group.truth})
		}
	}
	if uncovered > 0 {
		log.Warn("documents without any word vector embed as the zero vector",
			zap.Int("documents", uncovered))
	}

	Shuffle(p.rng, nodes)
	nodes, err := HoldOut(nodes, p.cfg.NumUnknownLabels)
	if err != nil {
		return nil, err
	}
	Shuffle(p.rng, nodes)

	log.Info("embedded documents",
		zap.Int("documents", len(nodes)),
		zap.Int("dim", vectors.Dim()))
	return &Dataset{Method: config.MethodGloVe, Nodes: nodes}, nil
}

func bodies(docs []corpus.Document) [][]string {
	out := make([][]string, len(docs))
	for i, d := range docs {
		out[i] = d.Tokens
	}
	return out
}

// HoldOut returns a fresh copy of nodes where the first n are Unknown and the
// rest carry their true class.
func HoldOut(nodes []Node, n int) ([]Node, error) {
	if n < 0 || n > len(nodes) {
		return nil, fmt.Errorf("hold out %d of %d nodes: %w", n, len(nodes), internalerr.ErrConfiguration)
	}
	out := make([]Node, len(nodes))
	copy(out, nodes)
	for i := range out {
		if i < n {
			out[i].Supervision = label.Unknown()
		} else {
			out[i].Supervision = label.Known(out[i].Truth)
		}
	}
	return out, nil
}

// Shuffle permutes nodes in place.
func Shuffle(rng *rand.Rand, nodes []Node) {
	cooccur.Shuffle(rng, nodes)
}

// TrialResult is the outcome of one graph-and-solve trial.
type TrialResult struct {
	K            int
	Beliefs      fabp.Beliefs
	Predicted    []label.Class
	Confusion    evaluate.Confusion
	Scores       evaluate.Scores
	Coefficients fabp.Coefficients
	Edges        int
}

// RunTrial builds the k-nearest-neighbour graph over the node embeddings,
// propagates the known labels and scores the held-out nodes.
func (p *Pipeline) RunTrial(ctx context.Context, nodes []Node, k int) (res TrialResult, err error) {
	defer func() { p.telemetry.TrialFinished(err) }()

	if err := ctx.Err(); err != nil {
		return TrialResult{}, err
	}
	log := logger.FromContext(ctx, p.logger)
	n := len(nodes)
	if k <= 0 || k >= n {
		return TrialResult{}, fmt.Errorf("knn k=%d with %d nodes: %w", k, n, internalerr.ErrConfiguration)
	}

	emb := embeddings(nodes)
	priors := make([]float64, n)
	sup := make([]label.Supervision, n)
	truth := make([]label.Class, n)
	for i, nd := range nodes {
		priors[i] = nd.Supervision.Prior()
		sup[i] = nd.Supervision
		truth[i] = nd.Truth
	}

	stop := p.telemetry.StartStage(telemetry.StageGraph)
	g, err := knn.Build(emb, k, p.metric)
	stop()
	if err != nil {
		return TrialResult{}, fmt.Errorf("knn graph: %w", err)
	}

	stop = p.telemetry.StartStage(telemetry.StageSolve)
	beliefs, coeffs, err := p.solver.Solve(g.Adjacency(p.cfg.FaBP.SelfLoop), priors)
	stop()
	if err != nil {
		return TrialResult{}, fmt.Errorf("fabp: %w", err)
	}

	predicted := beliefs.Classes()
	confusion, err := evaluate.Score(predicted, sup, truth)
	if err != nil {
		return TrialResult{}, err
	}
	scores := confusion.Scores()
	p.telemetry.SetAccuracy(scores.Accuracy)

	log.Debug("trial finished",
		zap.Int("k", k),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("held_out", confusion.Total()),
		zap.Float64("accuracy", scores.Accuracy),
		zap.Float64("f1", scores.F1))

	return TrialResult{
		K:            k,
		Beliefs:      beliefs,
		Predicted:    predicted,
		Confusion:    confusion,
		Scores:       scores,
		Coefficients: coeffs,
		Edges:        g.EdgeCount(),
	}, nil
}

// Run performs a single trial on the dataset as prepared, with knn_k
// neighbours.
func (p *Pipeline) Run(ctx context.Context, ds *Dataset) (TrialResult, error) {
	return p.RunTrial(ctx, ds.Nodes, p.cfg.KNNK)
}

func embeddings(nodes []Node) *mat.Dense {
	if len(nodes) == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(len(nodes), len(nodes[0].Embedding), nil)
	for i, nd := range nodes {
		m.SetRow(i, nd.Embedding)
	}
	return m
}
