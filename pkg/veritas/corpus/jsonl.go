package corpus

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/veritas/pkg/veritas/ingest"
	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

// Record is one line of a JSONL corpus.
type Record struct {
	Label string `json:"label"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// LoadJSONL loads labelled documents from a JSONL file. Malformed lines and
// lines with an unknown label are skipped with a warning.
func LoadJSONL(path string, tokenizer *ingest.Tokenizer, logger *zap.Logger) ([]Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var docs []Document
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logger.Warn("skipping malformed JSON line",
				zap.String("path", path), zap.Int("line", i+1), zap.Error(err))
			continue
		}
		class, err := label.Parse(rec.Label)
		if err != nil {
			logger.Warn("skipping line with unknown label",
				zap.String("path", path), zap.Int("line", i+1), zap.String("label", rec.Label))
			continue
		}
		docs = append(docs, Document{
			Path:   fmt.Sprintf("%s:%d", path, i+1),
			Class:  class,
			Tokens: tokenizer.Tokenize(rec.Text),
			Title:  tokenizer.Tokenize(rec.Title),
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no valid documents found in %s", path)
	}
	return docs, nil
}

// Split partitions documents by class, preserving order.
func Split(docs []Document) (fakeDocs, realDocs []Document) {
	for _, d := range docs {
		if d.Class == label.Real {
			realDocs = append(realDocs, d)
		} else {
			fakeDocs = append(fakeDocs, d)
		}
	}
	return fakeDocs, realDocs
}

// Sample draws count documents from docs without replacement. docs is not
// modified.
func Sample(rng *rand.Rand, docs []Document, count int) ([]Document, error) {
	if count < 0 || count > len(docs) {
		return nil, fmt.Errorf("sample %d of %d documents: %w", count, len(docs), internalerr.ErrConfiguration)
	}
	out := append([]Document(nil), docs...)
	if rng != nil {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out[:count], nil
}
