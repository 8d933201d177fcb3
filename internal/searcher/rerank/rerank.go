// Package rerank reorders a ranked list using secondary signals taken from
// the query text.
//
// Each Pass is a predicate over (query, record). Running a pass moves the
// records it matches to the front of the list and keeps the relative order
// inside both halves, so a pass is a stable one-bit bucket sort and running
// it twice changes nothing. A Pipeline applies its passes in order, each
// one consuming the previous output.
package rerank

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/parser"
)

// Condition reports whether r is relevant to q under one signal. It must be
// a pure function.
type Condition func(q *parser.Query, r record.Record) bool

// Pass is a named reranking step.
type Pass struct {
	Name      string
	Condition Condition
}

// Order selects the terminal ordering of a pipeline run.
type Order string

const (
	OrderRelevance Order = "relevance"
	OrderYear      Order = "year"
)

// ParseOrder maps a request value onto an Order. The empty string means
// relevance.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderRelevance:
		return OrderRelevance, nil
	case OrderYear:
		return OrderYear, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Year promotes records whose publication year is one of the query words.
// Matching is by whole word, so "18" never matches a query saying "2018".
var Year = Pass{
	Name: "year",
	Condition: func(q *parser.Query, r record.Record) bool {
		if r.Year() <= 0 {
			return false
		}
		return q.HasWord(strconv.Itoa(r.Year()))
	},
}

// Venue promotes records whose venue code is one of the query's
// whitespace-separated tokens, case-insensitively.
var Venue = Pass{
	Name: "venue",
	Condition: func(q *parser.Query, r record.Record) bool {
		v := r.Venue()
		if v == "" {
			return false
		}
		return q.HasField(strings.ToLower(v))
	},
}

// Author promotes records where every word of at least one author's name
// appears somewhere in the query, in any order.
var Author = Pass{
	Name: "author",
	Condition: func(q *parser.Query, r record.Record) bool {
		for i := 0; i < r.NumAuthors(); i++ {
			if q.ContainsAllWords(tokenizer.Words(r.Author(i))) {
				return true
			}
		}
		return false
	},
}

// DefaultPasses returns the built-in passes in their fixed order.
func DefaultPasses() []Pass {
	return []Pass{Year, Venue, Author}
}

// PassesByName returns the built-in passes named in names, keeping the
// default order. Unknown names are an error.
func PassesByName(names []string) ([]Pass, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var out []Pass
	for _, p := range DefaultPasses() {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("unknown rerank pass %q", n)
	}
	return out, nil
}

// Partition runs one pass over items. get extracts the record each item
// carries. It returns the reordered list and the number of items promoted.
func Partition[T any](p Pass, q *parser.Query, items []T, get func(T) record.Record) ([]T, int) {
	front := make([]T, 0, len(items))
	var back []T
	for _, it := range items {
		if p.matches(q, get(it)) {
			front = append(front, it)
		} else {
			back = append(back, it)
		}
	}
	return append(front, back...), len(front)
}

// Run applies p to a record list.
func (p Pass) Run(query string, records []record.Record) []record.Record {
	out, _ := Partition(p, parser.Parse(query), records, identity)
	return out
}

// matches evaluates the condition. A condition that panics counts as a
// miss for that record.
func (p Pass) matches(q *parser.Query, r record.Record) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("rerank condition failed",
				"pass", p.Name,
				"title", r.Title(),
				"panic", rec,
			)
			ok = false
		}
	}()
	return p.Condition(q, r)
}

// SortByYear orders items by descending year. Items with the same year keep
// their previous order.
func SortByYear[T any](items []T, get func(T) record.Record) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return get(out[i]).Year() > get(out[j]).Year()
	})
	return out
}

// Observer is told how many items each pass promoted.
type Observer func(pass string, promoted int)

// Pipeline is an ordered list of passes. New behaviour is added by
// appending a Pass.
type Pipeline struct {
	Passes   []Pass
	Observer Observer
}

// NewPipeline returns a pipeline with the given passes, or the defaults
// when none are given.
func NewPipeline(passes ...Pass) *Pipeline {
	if len(passes) == 0 {
		passes = DefaultPasses()
	}
	return &Pipeline{Passes: passes}
}

// Apply runs every pass of pl over items and, for OrderYear, finishes with
// SortByYear.
func Apply[T any](pl *Pipeline, query string, items []T, get func(T) record.Record, order Order) []T {
	q := parser.Parse(query)
	out := items
	for _, p := range pl.Passes {
		var promoted int
		out, promoted = Partition(p, q, out, get)
		if pl.Observer != nil {
			pl.Observer(p.Name, promoted)
		}
	}
	if order == OrderYear {
		out = SortByYear(out, get)
	}
	return out
}

// Run is Apply over plain records.
func (pl *Pipeline) Run(query string, records []record.Record, order Order) []record.Record {
	return Apply(pl, query, records, identity, order)
}

func identity(r record.Record) record.Record { return r }
