package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/rerank"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
)

var benchQueries = []string{
	"neural translation",
	"dependency parsing acl",
	"semantic parsing 2015 emnlp",
	"multilingual question answering Author7 Chen",
}

func BenchmarkQueryParse(b *testing.B) {
	for i, q := range benchQueries {
		b.Run(fmt.Sprintf("q%d", i), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = parser.Parse(q)
			}
		})
	}
}

// BenchmarkRankerRunScored measures ranking at several corpus sizes.
func BenchmarkRankerRunScored(b *testing.B) {
	for _, n := range []int{1000, 10000, 50000} {
		recs := syntheticCorpus(n)
		r := ranker.New[record.Record](tokenizer.DefaultOptions())
		if err := r.Fit(titlesOf(recs), recs); err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := r.RunScored(benchQueries[i%len(benchQueries)]); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRerank measures the three default passes plus the year sort
// over a ranked list.
func BenchmarkRerank(b *testing.B) {
	recs := syntheticCorpus(5000)
	pl := rerank.NewPipeline()
	for _, order := range []rerank.Order{rerank.OrderRelevance, rerank.OrderYear} {
		b.Run(string(order), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = pl.Run(benchQueries[i%len(benchQueries)], recs, order)
			}
		})
	}
}

func newBenchExecutor(b *testing.B, n int) (*executor.Executor, *indexer.Engine) {
	b.Helper()
	engine, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:   b.TempDir(),
		Tokenizer: tokenizer.DefaultOptions(),
	}, nil)
	if err != nil {
		b.Fatal(err)
	}
	if err := engine.Build(context.Background(), syntheticCorpus(n)); err != nil {
		b.Fatal(err)
	}
	return executor.New(engine, rerank.NewPipeline(), executor.Config{DefaultLimit: 10, MaxLimit: 100}), engine
}

// BenchmarkExecutorSearch measures rank, filter, rerank and paginate.
func BenchmarkExecutorSearch(b *testing.B) {
	exec, _ := newBenchExecutor(b, 20000)
	yearMin := 2010
	requests := map[string]executor.Request{
		"plain":    {Query: "neural translation"},
		"filtered": {Query: "neural translation", Filters: executor.Filters{Venues: []string{"acl", "emnlp"}, YearMin: &yearMin}},
		"by_year":  {Query: "neural translation", Filters: executor.Filters{Sort: "year"}, Offset: 20},
	}
	ctx := context.Background()
	for name, req := range requests {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Search(ctx, req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCachedSearch measures local cache hits, which skip ranking.
func BenchmarkCachedSearch(b *testing.B) {
	exec, engine := newBenchExecutor(b, 20000)
	qc, err := cache.New(cache.Config{LocalSize: 256}, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	fp := engine.Fingerprint()
	req := executor.Request{Query: "dependency parsing acl"}
	compute := func(ctx context.Context) (*executor.SearchResult, error) { return exec.Search(ctx, req) }
	if _, _, err := qc.GetOrCompute(ctx, fp, req, compute); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, _, err := qc.GetOrCompute(ctx, fp, req, compute); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
