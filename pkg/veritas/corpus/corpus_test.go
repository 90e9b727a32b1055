package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cognicore/veritas/pkg/veritas/ingest"
	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newDataset lays out n fake and n real articles, each with a title.
func newDataset(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("article%02d.txt", i)
		writeFile(t, filepath.Join(root, "news", "Fake", name), fmt.Sprintf("hoax number%d spreads", i))
		writeFile(t, filepath.Join(root, "news", "Fake_titles", name), "shocking claim")
		writeFile(t, filepath.Join(root, "news", "Real", name), fmt.Sprintf("report number%d confirmed", i))
		writeFile(t, filepath.Join(root, "news", "Real_titles", name), "official statement")
	}
	return root
}

func TestLoadReadsBodiesAndTitles(t *testing.T) {
	root := newDataset(t, 3)
	loader := &Loader{Root: root, Dataset: "news", Tokenizer: ingest.NewTokenizer(nil)}

	docs, err := loader.Load(label.Real, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	// Without a Rand the listing order is kept.
	first := docs[0]
	if first.Class != label.Real {
		t.Errorf("class = %v, want real", first.Class)
	}
	if !reflect.DeepEqual(first.Tokens, []string{"report", "number0", "confirmed"}) {
		t.Errorf("tokens = %v", first.Tokens)
	}
	if !reflect.DeepEqual(first.Title, []string{"official", "statement"}) {
		t.Errorf("title = %v", first.Title)
	}
	if filepath.Base(first.Path) != "article00.txt" {
		t.Errorf("path = %s", first.Path)
	}
}

func TestLoadSamplesWithoutReplacement(t *testing.T) {
	root := newDataset(t, 10)
	loader := &Loader{
		Root:      root,
		Dataset:   "news",
		Tokenizer: ingest.NewTokenizer(nil),
		Rand:      rand.New(rand.NewPCG(7, 7)),
	}

	for trial := 0; trial < 5; trial++ {
		docs, err := loader.Load(label.Fake, 10)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		seen := make(map[string]bool)
		for _, d := range docs {
			if seen[d.Path] {
				t.Fatalf("trial %d: %s sampled twice", trial, d.Path)
			}
			seen[d.Path] = true
		}
		if len(seen) != 10 {
			t.Fatalf("trial %d: %d distinct documents, want 10", trial, len(seen))
		}
	}
}

func TestLoadIsReproducible(t *testing.T) {
	root := newDataset(t, 8)
	load := func() []string {
		loader := &Loader{
			Root:      root,
			Dataset:   "news",
			Tokenizer: ingest.NewTokenizer(nil),
			Rand:      rand.New(rand.NewPCG(3, 4)),
		}
		docs, err := loader.Load(label.Fake, 4)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		paths := make([]string, len(docs))
		for i, d := range docs {
			paths[i] = d.Path
		}
		return paths
	}
	if a, b := load(), load(); !reflect.DeepEqual(a, b) {
		t.Errorf("same seed sampled %v then %v", a, b)
	}
}

func TestLoadTooMany(t *testing.T) {
	root := newDataset(t, 2)
	loader := &Loader{Root: root, Dataset: "news", Tokenizer: ingest.NewTokenizer(nil)}

	_, err := loader.Load(label.Fake, 3)
	if !errors.Is(err, internalerr.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadMissingTitle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "news", "Fake", "a.txt"), "only body")
	loader := &Loader{Root: root, Dataset: "news", Tokenizer: ingest.NewTokenizer(nil)}

	docs, err := loader.Load(label.Fake, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs[0].Title) != 0 {
		t.Errorf("expected empty title, got %v", docs[0].Title)
	}
}

func TestLoadSkipsHiddenFilesAndDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "news", "Fake", "a.txt"), "body")
	writeFile(t, filepath.Join(root, "news", "Fake", ".DS_Store"), "junk")
	writeFile(t, filepath.Join(root, "news", "Fake", "nested", "b.txt"), "nested")
	loader := &Loader{Root: root, Dataset: "news", Tokenizer: ingest.NewTokenizer(nil)}

	if _, err := loader.Load(label.Fake, 2); !errors.Is(err, internalerr.ErrConfiguration) {
		t.Errorf("only one usable file; expected ErrConfiguration, got %v", err)
	}
}

func TestLoadHTML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "news", "Real", "a.html"),
		"<html><body><p>Senate passes bill</p><script>track()</script></body></html>")
	loader := &Loader{Root: root, Dataset: "news", Tokenizer: ingest.NewTokenizer(nil)}

	docs, err := loader.Load(label.Real, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(docs[0].Tokens, []string{"senate", "passes", "bill"}) {
		t.Errorf("tokens = %v", docs[0].Tokens)
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	loader := &Loader{Root: t.TempDir(), Dataset: "none", Tokenizer: ingest.NewTokenizer(nil)}
	if _, err := loader.Load(label.Fake, 1); err == nil {
		t.Error("expected error for missing dataset")
	}
}

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	writeFile(t, path, `{"label":"fake","title":"Aliens land","text":"aliens landed downtown"}
not json
{"label":"satire","title":"x","text":"y"}

{"label":"REAL","title":"Rates hold","text":"central bank holds rates"}
`)

	docs, err := LoadJSONL(path, ingest.NewTokenizer(nil), nil)
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	fakeDocs, realDocs := Split(docs)
	if len(fakeDocs) != 1 || len(realDocs) != 1 {
		t.Fatalf("split %d/%d, want 1/1", len(fakeDocs), len(realDocs))
	}
	if !reflect.DeepEqual(fakeDocs[0].Title, []string{"aliens", "land"}) {
		t.Errorf("title = %v", fakeDocs[0].Title)
	}
	if !reflect.DeepEqual(realDocs[0].Tokens, []string{"central", "bank", "holds", "rates"}) {
		t.Errorf("tokens = %v", realDocs[0].Tokens)
	}
}

func TestLoadJSONLEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	writeFile(t, path, "garbage\n")
	if _, err := LoadJSONL(path, ingest.NewTokenizer(nil), nil); err == nil {
		t.Error("expected error for a file with no valid documents")
	}
}

func TestSample(t *testing.T) {
	docs := make([]Document, 6)
	for i := range docs {
		docs[i].Path = fmt.Sprintf("doc%d", i)
	}

	got, err := Sample(rand.New(rand.NewPCG(1, 2)), docs, 4)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d documents, want 4", len(got))
	}
	seen := make(map[string]bool)
	for _, d := range got {
		if seen[d.Path] {
			t.Errorf("%s drawn twice", d.Path)
		}
		seen[d.Path] = true
	}
	if docs[0].Path != "doc0" || docs[5].Path != "doc5" {
		t.Error("input slice was reordered")
	}

	if _, err := Sample(nil, docs, 7); !errors.Is(err, internalerr.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
