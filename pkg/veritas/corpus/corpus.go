// Package corpus loads labelled news articles from disk.
//
// A dataset lives under <root>/<dataset>/ with one directory per class
// (Fake, Real) holding article bodies, and optional sibling directories
// (Fake_titles, Real_titles) holding titles under the same file names.
package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/veritas/pkg/veritas/ingest"
	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

// Document is a tokenized article.
type Document struct {
	Path   string
	Class  label.Class
	Tokens []string // body tokens; these feed the co-occurrence tensor
	Title  []string // title tokens; vocabulary only
}

// Loader samples documents from a dataset directory.
type Loader struct {
	Root      string
	Dataset   string
	Tokenizer *ingest.Tokenizer
	// Rand drives sampling. When nil the first count files in name order
	// are taken.
	Rand   *rand.Rand
	Logger *zap.Logger
}

// ClassDir returns the directory holding bodies of the given class.
func (l *Loader) ClassDir(class label.Class) string {
	return filepath.Join(l.Root, l.Dataset, dirName(class))
}

// TitleDir returns the directory holding titles of the given class.
func (l *Loader) TitleDir(class label.Class) string {
	return filepath.Join(l.Root, l.Dataset, dirName(class)+"_titles")
}

// Load samples count distinct documents of the given class without
// replacement. Asking for more documents than exist is a configuration error.
func (l *Loader) Load(class label.Class, count int) ([]Document, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("load: %v: %w", class, internalerr.ErrInvalidInput)
	}
	if count < 0 {
		return nil, fmt.Errorf("load %s: negative count %d: %w", class, count, internalerr.ErrConfiguration)
	}
	if l.Tokenizer == nil {
		return nil, fmt.Errorf("load %s: nil tokenizer: %w", class, internalerr.ErrConfiguration)
	}

	dir := l.ClassDir(class)
	names, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	available := len(names)
	if count > available {
		return nil, fmt.Errorf("load %s: requested %d documents but %s holds %d: %w",
			class, count, dir, available, internalerr.ErrConfiguration)
	}

	if l.Rand != nil {
		l.Rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	}
	names = names[:count]

	logger := l.logger()
	docs := make([]Document, 0, count)
	for _, name := range names {
		path := filepath.Join(dir, name)
		body, err := readText(path)
		if err != nil {
			return nil, err
		}
		doc := Document{
			Path:   path,
			Class:  class,
			Tokens: l.Tokenizer.Tokenize(body),
		}

		title, err := readText(filepath.Join(l.TitleDir(class), name))
		switch {
		case err == nil:
			doc.Title = l.Tokenizer.Tokenize(title)
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug("no title for document", zap.String("path", path))
		default:
			return nil, err
		}
		docs = append(docs, doc)
	}

	logger.Info("loaded documents",
		zap.Stringer("class", class),
		zap.Int("count", len(docs)),
		zap.Int("available", available))
	return docs, nil
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func dirName(class label.Class) string {
	if class == label.Real {
		return "Real"
	}
	return "Fake"
}

// listFiles returns the regular, non-hidden file names in dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// readText reads a file as text, stripping markup from HTML files.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	text := strings.ToValidUTF8(string(data), " ")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text = ingest.StripHTML(text)
	}
	return text, nil
}
