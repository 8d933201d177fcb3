// Package tokenizer provides text tokenisation for the lexical index.
// It lower-cases input and splits on non-alphanumeric boundaries. Short
// tokens are dropped; stop-word removal and Snowball stemming are optional
// and off by default.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// DefaultMinLength drops single-character tokens.
const DefaultMinLength = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Options controls term extraction. Options are persisted with an index
// snapshot so queries are always tokenised the way the corpus was.
type Options struct {
	MinLength       int  `yaml:"minLength" cbor:"1,keyasint"`
	RemoveStopWords bool `yaml:"removeStopWords" cbor:"2,keyasint"`
	Stem            bool `yaml:"stem" cbor:"3,keyasint"`
}

// DefaultOptions matches a plain lowercase word tokenizer.
func DefaultOptions() Options {
	return Options{MinLength: DefaultMinLength}
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenizer turns text into Tokens under a fixed set of Options. It holds
// no mutable state and is safe for concurrent use.
type Tokenizer struct {
	opts Options
}

// New returns a Tokenizer. A non-positive MinLength is treated as 1.
func New(opts Options) *Tokenizer {
	if opts.MinLength < 1 {
		opts.MinLength = 1
	}
	return &Tokenizer{opts: opts}
}

// Options returns the normalised options in effect.
func (t *Tokenizer) Options() Options {
	return t.opts
}

// Tokenize breaks text into lowercased Tokens.
func (t *Tokenizer) Tokenize(text string) []Token {
	words := Words(text)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if len([]rune(word)) < t.opts.MinLength {
			continue
		}
		if t.opts.RemoveStopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if t.opts.Stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Tokenize without positions.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Words lowercases text and splits it on every rune that is neither a
// letter nor a digit. No filtering is applied.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// WordSet is Words collected into a set.
func WordSet(text string) map[string]struct{} {
	words := Words(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// stem reduces word to its Snowball (Porter2) English stem.
func stem(word string) string {
	return english.Stem(word, true)
}
