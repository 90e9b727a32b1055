package vocab

import "sort"

// UnknownToken is the reserved entry every frozen vocabulary contains.
const UnknownToken = "<unk>"

// Order controls index assignment at freeze time.
type Order int

const (
	// ByFrequency assigns lower indices to more frequent words; ties keep
	// first-seen order.
	ByFrequency Order = iota
	// ByInsertion assigns indices in first-seen order.
	ByInsertion
)

// Builder accumulates word frequencies over tokenized documents
type Builder struct {
	freq  map[string]int64
	order []string // first-seen order
}

// NewBuilder creates an empty vocabulary builder
func NewBuilder() *Builder {
	return &Builder{freq: make(map[string]int64)}
}

// Ingest increments the frequency of every token in the document.
func (b *Builder) Ingest(tokens []string) {
	for _, t := range tokens {
		if _, ok := b.freq[t]; !ok {
			b.order = append(b.order, t)
		}
		b.freq[t]++
	}
}

// IngestAll ingests several documents.
func (b *Builder) IngestAll(docs [][]string) {
	for _, d := range docs {
		b.Ingest(d)
	}
}

// Len returns the number of distinct words seen so far.
func (b *Builder) Len() int {
	return len(b.order)
}

// FreezeOptions configures Freeze.
type FreezeOptions struct {
	// MaxSize caps the vocabulary including the unknown entry. Zero means no cap.
	MaxSize int
	Order   Order
}

// Freeze produces an immutable vocabulary. The unknown entry is always
// present with frequency 0, even when no unknown word was ever seen.
func (b *Builder) Freeze(opts FreezeOptions) *Vocabulary {
	words := make([]string, 0, len(b.order)+1)
	for _, w := range b.order {
		if w == UnknownToken {
			continue
		}
		words = append(words, w)
	}
	if opts.Order == ByFrequency {
		sort.SliceStable(words, func(i, j int) bool {
			return b.freq[words[i]] > b.freq[words[j]]
		})
	}
	// <unk> has frequency 0 so it sorts last; it is kept even under a cap.
	if opts.MaxSize > 0 && len(words) > opts.MaxSize-1 {
		words = words[:opts.MaxSize-1]
	}
	words = append(words, UnknownToken)

	v := &Vocabulary{
		words: words,
		index: make(map[string]int, len(words)),
		freq:  make(map[string]int64, len(words)),
	}
	for i, w := range words {
		v.index[w] = i
		if w != UnknownToken {
			v.freq[w] = b.freq[w]
		}
	}
	v.unk = v.index[UnknownToken]
	v.freq[UnknownToken] = 0
	return v
}

// Vocabulary is a frozen word↔index mapping. It is safe for concurrent reads.
type Vocabulary struct {
	words []string
	index map[string]int
	freq  map[string]int64
	unk   int
}

// Lookup returns the index of word, or the unknown index when absent.
func (v *Vocabulary) Lookup(word string) int {
	if i, ok := v.index[word]; ok {
		return i
	}
	return v.unk
}

// Contains reports whether word has its own entry.
func (v *Vocabulary) Contains(word string) bool {
	_, ok := v.index[word]
	return ok
}

// Word returns the word at index i, or the unknown token when out of range.
func (v *Vocabulary) Word(i int) string {
	if i < 0 || i >= len(v.words) {
		return UnknownToken
	}
	return v.words[i]
}

// Frequency returns the ingested count of word (0 for absent words).
func (v *Vocabulary) Frequency(word string) int64 {
	return v.freq[word]
}

// UnknownIndex returns the index of the unknown entry.
func (v *Vocabulary) UnknownIndex() int {
	return v.unk
}

// Size returns the number of entries, unknown included.
func (v *Vocabulary) Size() int {
	return len(v.words)
}

// Words returns a copy of the index→word table.
func (v *Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}
