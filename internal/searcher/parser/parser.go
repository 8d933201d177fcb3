// Package parser extracts the query signals used by the reranking passes.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
)

// Query is a search string split two ways. Words follows the tokenizer's
// word boundaries (any non-letter, non-digit rune); Fields is the
// lowercased whitespace split, so "acl," stays "acl,".
type Query struct {
	Raw    string
	Words  []string
	Fields []string

	words  map[string]struct{}
	fields map[string]struct{}
}

// Parse lowercases and splits raw. Any string, including the empty one, is
// a valid query.
func Parse(raw string) *Query {
	q := &Query{
		Raw:    raw,
		Words:  tokenizer.Words(raw),
		Fields: strings.Fields(strings.ToLower(raw)),
	}
	q.words = toSet(q.Words)
	q.fields = toSet(q.Fields)
	return q
}

// HasWord reports whether w is one of the query's words.
func (q *Query) HasWord(w string) bool {
	_, ok := q.words[w]
	return ok
}

// HasField reports whether f is one of the query's whitespace tokens.
func (q *Query) HasField(f string) bool {
	_, ok := q.fields[f]
	return ok
}

// ContainsAllWords reports whether every word in ws appears in the query.
// An empty ws is not contained.
func (q *Query) ContainsAllWords(ws []string) bool {
	if len(ws) == 0 {
		return false
	}
	for _, w := range ws {
		if !q.HasWord(w) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the query has no words.
func (q *Query) IsEmpty() bool { return len(q.Words) == 0 }

func toSet(xs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	return set
}
