// Package index builds the TF-IDF document-term matrix for a fixed corpus
// and projects query strings into the same term space.
//
// Rows are stored sparsely and L2-normalised, so the cosine similarity of
// a query with a document is the dot product of their vectors. A column
// view (posting lists) is derived from the rows so a query only touches
// documents that share at least one term with it.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
)

// Index is a fitted lexical index. It is immutable after Build or FromParts
// and safe for concurrent readers.
type Index struct {
	tok      *tokenizer.Tokenizer
	vocab    map[string]int
	terms    []string
	idf      []float64
	rows     []Vector
	postings []PostingList
}

// Build fits an index over texts. Term columns are assigned in ascending
// lexical order and each term weight is count × idf with
// idf = ln((1+N)/(1+df)) + 1.
func Build(texts []string, opts tokenizer.Options) (*Index, error) {
	if len(texts) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrEmptyCorpus, "no documents")
	}
	tok := tokenizer.New(opts)

	counts := make([]map[string]int, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		c := make(map[string]int)
		for _, term := range tok.Terms(text) {
			c[term]++
		}
		for term := range c {
			df[term]++
		}
		counts[i] = c
	}
	if len(df) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrEmptyCorpus, "%d documents produced no terms", len(texts))
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(texts))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for col, term := range terms {
		vocab[term] = col
		idf[col] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	rows := make([]Vector, len(texts))
	for i, c := range counts {
		rows[i] = weigh(c, vocab, idf)
	}
	return assemble(tok, terms, vocab, idf, rows), nil
}

// FromParts reassembles an index from previously exported parts. It checks
// the parts for consistency and rebuilds the posting lists.
func FromParts(opts tokenizer.Options, terms []string, idf []float64, rows []Vector) (*Index, error) {
	if len(rows) == 0 || len(terms) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrEmptyCorpus, "snapshot has %d rows and %d terms", len(rows), len(terms))
	}
	if len(idf) != len(terms) {
		return nil, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "idf has %d entries for %d terms", len(idf), len(terms))
	}
	vocab := make(map[string]int, len(terms))
	for col, term := range terms {
		if _, dup := vocab[term]; dup {
			return nil, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "duplicate term %q", term)
		}
		vocab[term] = col
	}
	for i, row := range rows {
		if len(row.Indices) != len(row.Values) {
			return nil, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "row %d has %d indices and %d values", i, len(row.Indices), len(row.Values))
		}
		prev := -1
		for _, c := range row.Indices {
			if c <= prev || c >= len(terms) {
				return nil, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "row %d has column %d out of order or range", i, c)
			}
			prev = c
		}
	}
	return assemble(tokenizer.New(opts), terms, vocab, idf, rows), nil
}

func assemble(tok *tokenizer.Tokenizer, terms []string, vocab map[string]int, idf []float64, rows []Vector) *Index {
	postings := make([]PostingList, len(terms))
	for doc, row := range rows {
		for k, col := range row.Indices {
			postings[col] = append(postings[col], Posting{Doc: doc, Weight: row.Values[k]})
		}
	}
	return &Index{
		tok:      tok,
		vocab:    vocab,
		terms:    terms,
		idf:      idf,
		rows:     rows,
		postings: postings,
	}
}

// weigh turns raw term counts into a normalised TF-IDF row. Terms missing
// from vocab are dropped.
func weigh(counts map[string]int, vocab map[string]int, idf []float64) Vector {
	type cell struct {
		col   int
		count int
	}
	cells := make([]cell, 0, len(counts))
	for term, n := range counts {
		if col, ok := vocab[term]; ok {
			cells = append(cells, cell{col: col, count: n})
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].col < cells[j].col })
	v := Vector{
		Indices: make([]int, len(cells)),
		Values:  make([]float64, len(cells)),
	}
	for k, c := range cells {
		v.Indices[k] = c.col
		v.Values[k] = float64(c.count) * idf[c.col]
	}
	return normalize(v)
}

// Transform projects a query into the index's term space. Out-of-vocabulary
// terms are ignored; if none remain the zero vector is returned.
func (ix *Index) Transform(query string) Vector {
	counts := make(map[string]int)
	for _, term := range ix.tok.Terms(query) {
		if _, ok := ix.vocab[term]; ok {
			counts[term]++
		}
	}
	return weigh(counts, ix.vocab, ix.idf)
}

// Match is a document's cosine similarity with a query vector.
type Match struct {
	Doc        int
	Similarity float64
}

// Similarities returns the cosine similarity of q with every document
// sharing at least one column with it, in ascending document order.
// Documents not returned have similarity zero.
func (ix *Index) Similarities(q Vector) []Match {
	if q.IsZero() {
		return nil
	}
	acc := make([]float64, len(ix.rows))
	touched := make([]bool, len(ix.rows))
	for k, col := range q.Indices {
		w := q.Values[k]
		for _, p := range ix.postings[col] {
			acc[p.Doc] += w * p.Weight
			touched[p.Doc] = true
		}
	}
	matches := make([]Match, 0)
	for doc, ok := range touched {
		if ok {
			matches = append(matches, Match{Doc: doc, Similarity: acc[doc]})
		}
	}
	return matches
}

// NumDocs returns the number of indexed documents.
func (ix *Index) NumDocs() int { return len(ix.rows) }

// VocabSize returns the number of term columns.
func (ix *Index) VocabSize() int { return len(ix.terms) }

// Row returns document i's vector. Callers must not modify it.
func (ix *Index) Row(i int) Vector { return ix.rows[i] }

// Column returns the column of term and whether it is in the vocabulary.
func (ix *Index) Column(term string) (int, bool) {
	col, ok := ix.vocab[term]
	return col, ok
}

// Postings returns the posting list of a column. Callers must not modify it.
func (ix *Index) Postings(col int) PostingList { return ix.postings[col] }

// Options returns the tokenizer options the index was built with.
func (ix *Index) Options() tokenizer.Options { return ix.tok.Options() }

// Parts exposes the state needed to rebuild the index with FromParts.
// The returned slices are shared and must not be modified.
func (ix *Index) Parts() (terms []string, idf []float64, rows []Vector) {
	return ix.terms, ix.idf, ix.rows
}

func (ix *Index) String() string {
	return fmt.Sprintf("index(docs=%d, vocab=%d)", len(ix.rows), len(ix.terms))
}
