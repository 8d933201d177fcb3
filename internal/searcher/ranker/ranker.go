// Package ranker orders corpus payloads by cosine distance between a query
// and the TF-IDF rows of a fitted lexical index.
package ranker

import (
	"sort"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
)

// SimilarityFloor is the exclusive upper bound on cosine distance. A
// document at distance 1.0 or more from the query shares no weighted term
// with it and is dropped from the ranking.
const SimilarityFloor = 1.0

// Hit is one ranked payload.
type Hit[T any] struct {
	Payload  T
	Position int
	Distance float64
}

// fitted is the (index, payloads) pair. It is never mutated once built.
type fitted[T any] struct {
	index    *index.Index
	payloads []T
}

// Ranker owns a fitted index and the payload returned for each row.
// Fit must complete before results are observed; Run may then be called
// from any number of goroutines. opts is fixed at New; a restored index
// keeps the options it was built with.
type Ranker[T any] struct {
	opts  tokenizer.Options
	state atomic.Pointer[fitted[T]]
}

// New returns an unfitted Ranker that tokenizes with opts.
func New[T any](opts tokenizer.Options) *Ranker[T] {
	return &Ranker[T]{opts: opts}
}

// Fit builds the index over x and binds y[i] to row i. On error the
// previously fitted state, if any, is kept.
func (r *Ranker[T]) Fit(x []string, y []T) error {
	if len(x) != len(y) {
		return apperrors.Wrap(apperrors.ErrMismatchedLength, "%d texts, %d payloads", len(x), len(y))
	}
	ix, err := index.Build(x, r.opts)
	if err != nil {
		return err
	}
	payloads := make([]T, len(y))
	copy(payloads, y)
	r.state.Store(&fitted[T]{index: ix, payloads: payloads})
	return nil
}

// Fitted reports whether Fit or Restore has succeeded.
func (r *Ranker[T]) Fitted() bool {
	return r.state.Load() != nil
}

// Run returns the payloads of every document closer than SimilarityFloor
// to query, nearest first, ties in corpus order.
func (r *Ranker[T]) Run(query string) ([]T, error) {
	hits, err := r.RunScored(query)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.Payload
	}
	return out, nil
}

// RunScored is Run with distances and corpus positions attached.
func (r *Ranker[T]) RunScored(query string) ([]Hit[T], error) {
	st := r.state.Load()
	if st == nil {
		return nil, apperrors.ErrNotFitted
	}
	q := st.index.Transform(query)
	matches := st.index.Similarities(q)

	hits := make([]Hit[T], 0, len(matches))
	for _, m := range matches {
		d := Distance(m.Similarity)
		if d >= SimilarityFloor {
			continue
		}
		hits = append(hits, Hit[T]{
			Payload:  st.payloads[m.Doc],
			Position: m.Doc,
			Distance: d,
		})
	}
	// matches arrive in corpus order, so a stable sort keeps ties there.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits, nil
}

// Distance converts a cosine similarity into a distance in [0, 2].
func Distance(similarity float64) float64 {
	d := 1 - similarity
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

// Snapshot is the persisted form of a fitted Ranker.
type Snapshot[T any] struct {
	Options  tokenizer.Options
	Terms    []string
	IDF      []float64
	Rows     []index.Vector
	Payloads []T
}

// Snapshot exports the fitted state. The slices are shared with the
// Ranker and must not be modified.
func (r *Ranker[T]) Snapshot() (*Snapshot[T], error) {
	st := r.state.Load()
	if st == nil {
		return nil, apperrors.ErrNotFitted
	}
	terms, idf, rows := st.index.Parts()
	return &Snapshot[T]{
		Options:  st.index.Options(),
		Terms:    terms,
		IDF:      idf,
		Rows:     rows,
		Payloads: st.payloads,
	}, nil
}

// Restore replaces the fitted state with snap. The matrix and payloads are
// validated together and installed in one step; a snapshot missing either
// half is rejected and leaves the Ranker unchanged.
func (r *Ranker[T]) Restore(snap *Snapshot[T]) error {
	if snap == nil {
		return apperrors.Wrap(apperrors.ErrCorruptSnapshot, "nil snapshot")
	}
	if len(snap.Rows) != len(snap.Payloads) {
		return apperrors.Wrap(apperrors.ErrCorruptSnapshot, "%d rows, %d payloads", len(snap.Rows), len(snap.Payloads))
	}
	ix, err := index.FromParts(snap.Options, snap.Terms, snap.IDF, snap.Rows)
	if err != nil {
		return err
	}
	r.state.Store(&fitted[T]{index: ix, payloads: snap.Payloads})
	return nil
}

// Stats describes the fitted index.
type Stats struct {
	Documents  int `json:"documents"`
	Vocabulary int `json:"vocabulary"`
}

// Stats returns the size of the fitted index, or zeroes when unfitted.
func (r *Ranker[T]) Stats() Stats {
	st := r.state.Load()
	if st == nil {
		return Stats{}
	}
	return Stats{Documents: st.index.NumDocs(), Vocabulary: st.index.VocabSize()}
}
