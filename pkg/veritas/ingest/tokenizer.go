package ingest

import (
	"strings"
	"unicode"
)

// Tokenizer handles text tokenization and normalization
type Tokenizer struct {
	stopwords   map[string]struct{}
	keepNumeric bool
	minLength   int
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// KeepNumeric keeps pure-numeric tokens such as years and counts.
func KeepNumeric() Option {
	return func(t *Tokenizer) { t.keepNumeric = true }
}

// MinLength drops tokens shorter than n runes. The default is 2.
func MinLength(n int) Option {
	return func(t *Tokenizer) { t.minLength = n }
}

// NewTokenizer creates a new tokenizer with the given stopword list
func NewTokenizer(stopwords []string, opts ...Option) *Tokenizer {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	t := &Tokenizer{stopwords: stops, minLength: 2}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tokenize splits text into lower-cased tokens on runs of anything other than
// letters, digits and hyphens, then drops stopwords.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := t.processToken(current.String()); word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()

	return tokens
}

func (t *Tokenizer) processToken(token string) string {
	word := cleanToken(token)
	if word == "" || len([]rune(word)) < t.minLength {
		return ""
	}

	// Mixed tokens like "covid-19" or "g20" are always kept.
	if !t.keepNumeric && isNumericOnly(word) {
		return ""
	}

	if t.isStopword(word) {
		return ""
	}
	return word
}

// cleanToken strips leading/trailing hyphens and collapses repeated ones.
func cleanToken(token string) string {
	token = strings.Trim(token, "-")
	for strings.Contains(token, "--") {
		token = strings.ReplaceAll(token, "--", "-")
	}
	return token
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}

func (t *Tokenizer) isStopword(word string) bool {
	_, ok := t.stopwords[word]
	return ok
}
