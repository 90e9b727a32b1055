// Package config loads the YAML run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/knn"
)

// Config holds every tunable of a run. It is loaded once and then passed by
// value; components receive the sub-structs they need.
type Config struct {
	DatasetPath     string `yaml:"dataset_path"`
	DatasetName     string `yaml:"dataset_name"`
	NumFakeArticles int    `yaml:"num_fake_articles"`
	NumRealArticles int    `yaml:"num_real_articles"`

	VocabSizeCap int    `yaml:"vocab_size_cap"`
	VocabOrder   string `yaml:"vocab_order"` // frequency (default), insertion

	CoOccurrenceWindow int  `yaml:"co_occurrence_window"`
	UseFrequency       bool `yaml:"use_frequency"`

	DecompositionRank int                 `yaml:"decomposition_rank"`
	Decomposition     DecompositionConfig `yaml:"decomposition"`

	Embedding EmbeddingConfig `yaml:"embedding"`

	KNNK      int    `yaml:"knn_k"`
	KNNMetric string `yaml:"knn_metric"` // cosine (default), euclidean

	NumUnknownLabels  int        `yaml:"num_unknown_labels"`
	HomophilyStrength float64    `yaml:"homophily_strength"`
	FaBP              FaBPConfig `yaml:"fabp"`

	TrialCount int         `yaml:"trial_count"`
	Seed       uint64      `yaml:"seed"`
	Sweep      SweepConfig `yaml:"sweep"`

	Stopwords    []string `yaml:"stopwords"`
	StoplistPath string   `yaml:"stoplist_path"`
	KeepNumeric  bool     `yaml:"keep_numeric"`

	Store       StoreConfig   `yaml:"store"`
	Logging     LoggingConfig `yaml:"logging"`
	MetricsFile string        `yaml:"metrics_file"`
}

// DecompositionConfig tunes the CP-ALS solver.
type DecompositionConfig struct {
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Ridge         float64 `yaml:"ridge"`
	Strict        bool    `yaml:"strict"` // fail instead of returning the last iterate
}

// EmbeddingConfig selects how document embeddings are produced.
type EmbeddingConfig struct {
	Method    string `yaml:"method"`     // decomposition (default), glove
	GloVePath string `yaml:"glove_path"` // word vector text file, required for glove
}

// Embedding methods.
const (
	MethodDecomposition = "decomposition"
	MethodGloVe         = "glove"
)

// FaBPConfig tunes the belief propagation solver. A and C override the
// coefficients derived from homophily_strength when set.
type FaBPConfig struct {
	A            *float64 `yaml:"a"`
	C            *float64 `yaml:"c"`
	SelfLoop     float64  `yaml:"self_loop"`
	MaxCondition float64  `yaml:"max_condition"`
}

// SweepConfig is the grid explored by a statistics sweep.
type SweepConfig struct {
	KnownPercentages []float64 `yaml:"known_percentages"`
	Neighbors        []int     `yaml:"neighbors"`
}

// StoreConfig selects where sweep results are persisted.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite (default), memory
	Path   string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // local, dev, prod
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		DatasetPath:        "./data",
		DatasetName:        "articles",
		NumFakeArticles:    50,
		NumRealArticles:    50,
		VocabSizeCap:       500,
		VocabOrder:         "frequency",
		CoOccurrenceWindow: 4,
		UseFrequency:       true,
		DecompositionRank:  10,
		Decomposition: DecompositionConfig{
			Tolerance:     1e-8,
			MaxIterations: 100,
			Ridge:         1e-9,
		},
		Embedding:         EmbeddingConfig{Method: MethodDecomposition},
		KNNK:              3,
		KNNMetric:         "cosine",
		NumUnknownLabels:  20,
		HomophilyStrength: 0.5,
		FaBP: FaBPConfig{
			SelfLoop:     1,
			MaxCondition: 1e12,
		},
		TrialCount: 5,
		Seed:       12,
		Sweep: SweepConfig{
			KnownPercentages: []float64{2, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 60, 70, 80, 90, 95},
			Neighbors:        []int{1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
		Store:   StoreConfig{Driver: "sqlite", Path: "veritas.db"},
		Logging: LoggingConfig{Env: "local", Level: "info"},
	}
}

// Load reads, expands, defaults and validates a YAML configuration file.
// Relative stoplist_path and embedding.glove_path values are resolved against
// the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}

	if cfg.StoplistPath != "" {
		slPath := cfg.StoplistPath
		if !filepath.IsAbs(slPath) {
			slPath = filepath.Join(filepath.Dir(path), slPath)
		}
		sl, err := LoadStoplist(slPath)
		if err != nil {
			return Config{}, fmt.Errorf("load stoplist: %w", err)
		}
		cfg.Stopwords = append(cfg.Stopwords, sl.Terms...)
	}

	if p := cfg.Embedding.GloVePath; p != "" && !filepath.IsAbs(p) {
		cfg.Embedding.GloVePath = filepath.Join(filepath.Dir(path), p)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and fills zero values. It does not
// validate.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills fields whose zero value is never meaningful.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.VocabOrder == "" {
		c.VocabOrder = d.VocabOrder
	}
	if c.KNNMetric == "" {
		c.KNNMetric = d.KNNMetric
	}
	if c.Embedding.Method == "" {
		c.Embedding.Method = d.Embedding.Method
	}
	if c.Decomposition.Tolerance <= 0 {
		c.Decomposition.Tolerance = d.Decomposition.Tolerance
	}
	if c.Decomposition.MaxIterations <= 0 {
		c.Decomposition.MaxIterations = d.Decomposition.MaxIterations
	}
	if c.FaBP.MaxCondition <= 0 {
		c.FaBP.MaxCondition = d.FaBP.MaxCondition
	}
	if c.TrialCount <= 0 {
		c.TrialCount = d.TrialCount
	}
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Logging.Env == "" {
		c.Logging.Env = d.Logging.Env
	}
}

// TotalArticles is the number of graph nodes.
func (c *Config) TotalArticles() int {
	return c.NumFakeArticles + c.NumRealArticles
}

// Validate checks the configuration for correctness. Every error wraps
// internalerr.ErrConfiguration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, internalerr.ErrConfiguration)...)
	}

	switch {
	case c.NumFakeArticles <= 0:
		return invalid("num_fake_articles must be positive, got %d", c.NumFakeArticles)
	case c.NumRealArticles <= 0:
		return invalid("num_real_articles must be positive, got %d", c.NumRealArticles)
	case c.VocabSizeCap < 0:
		return invalid("vocab_size_cap must not be negative, got %d", c.VocabSizeCap)
	case c.CoOccurrenceWindow <= 0:
		return invalid("co_occurrence_window must be positive, got %d", c.CoOccurrenceWindow)
	case c.DecompositionRank <= 0:
		return invalid("decomposition_rank must be positive, got %d", c.DecompositionRank)
	case c.Decomposition.Ridge < 0:
		return invalid("decomposition.ridge must not be negative, got %g", c.Decomposition.Ridge)
	case c.KNNK <= 0:
		return invalid("knn_k must be positive, got %d", c.KNNK)
	case c.KNNK >= c.TotalArticles():
		return invalid("knn_k (%d) must be smaller than the number of articles (%d)", c.KNNK, c.TotalArticles())
	case c.NumUnknownLabels < 0 || c.NumUnknownLabels > c.TotalArticles():
		return invalid("num_unknown_labels must be in [0, %d], got %d", c.TotalArticles(), c.NumUnknownLabels)
	case c.HomophilyStrength < 0:
		return invalid("homophily_strength must not be negative, got %g", c.HomophilyStrength)
	case c.FaBP.SelfLoop < 0:
		return invalid("fabp.self_loop must not be negative, got %g", c.FaBP.SelfLoop)
	}

	switch c.VocabOrder {
	case "frequency", "insertion":
	default:
		return invalid("vocab_order must be \"frequency\" or \"insertion\", got %q", c.VocabOrder)
	}
	switch c.Embedding.Method {
	case MethodDecomposition:
	case MethodGloVe:
		if c.Embedding.GloVePath == "" {
			return invalid("embedding.glove_path is required for the glove method")
		}
	default:
		return invalid("embedding.method must be %q or %q, got %q", MethodDecomposition, MethodGloVe, c.Embedding.Method)
	}
	if _, err := knn.ParseMetric(c.KNNMetric); err != nil {
		return invalid("knn_metric %q", c.KNNMetric)
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return invalid("store.driver must be \"sqlite\" or \"memory\", got %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return invalid("store.path is required for the sqlite driver")
	}

	seenPct := make(map[float64]bool, len(c.Sweep.KnownPercentages))
	for _, p := range c.Sweep.KnownPercentages {
		if p <= 0 || p > 100 {
			return invalid("sweep.known_percentages must lie in (0, 100], got %g", p)
		}
		if seenPct[p] {
			return invalid("sweep.known_percentages lists %g twice", p)
		}
		seenPct[p] = true
	}
	seenK := make(map[int]bool, len(c.Sweep.Neighbors))
	for _, k := range c.Sweep.Neighbors {
		if k <= 0 || k >= c.TotalArticles() {
			return invalid("sweep.neighbors must lie in [1, %d), got %d", c.TotalArticles(), k)
		}
		if seenK[k] {
			return invalid("sweep.neighbors lists %d twice", k)
		}
		seenK[k] = true
	}
	return nil
}

// Stoplist is a YAML stopword file.
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}
	return &sl, nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
