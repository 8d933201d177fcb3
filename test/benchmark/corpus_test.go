package benchmark

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
)

var (
	topicWords = []string{
		"neural", "statistical", "translation", "parsing", "dependency", "semantic",
		"embeddings", "attention", "summarization", "dialogue", "entity", "recognition",
		"sentiment", "morphology", "coreference", "question", "answering", "language",
		"model", "pretraining", "evaluation", "corpus", "annotation", "transfer",
		"multilingual", "discourse", "syntax", "lexical", "retrieval", "generation",
	}
	benchVenues = []string{"acl", "emnlp", "naacl", "eacl", "coling"}
	surnames    = []string{"Smith", "Chen", "Garcia", "Müller", "Rossi", "Kim", "Nguyen", "Ivanova"}
)

// syntheticCorpus returns n reproducible paper records with 4 to 9 word
// titles drawn from a small topic vocabulary.
func syntheticCorpus(n int) []record.Record {
	rng := rand.New(rand.NewSource(42))
	out := make([]record.Record, n)
	for i := range out {
		words := make([]string, 4+rng.Intn(6))
		for j := range words {
			words[j] = topicWords[rng.Intn(len(topicWords))]
		}
		authors := make([]string, 1+rng.Intn(3))
		for j := range authors {
			authors[j] = fmt.Sprintf("Author%d %s", rng.Intn(50), surnames[rng.Intn(len(surnames))])
		}
		out[i] = record.New(
			strings.Join(words, " "),
			authors,
			1990+rng.Intn(35),
			benchVenues[rng.Intn(len(benchVenues))],
			fmt.Sprintf("https://example.org/p/%d", i),
		)
	}
	return out
}

func titlesOf(recs []record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title()
	}
	return out
}
