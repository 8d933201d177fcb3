// Command loadtest drives GET /api/v1/search with a mix of plain, filtered
// and year-sorted paper queries and reports throughput, latency percentiles
// and the share of zero-result answers.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s] [-queries queries.txt] [-json]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"
)

var defaultQueries = []string{
	"neural machine translation",
	"dependency parsing",
	"semantic role labeling",
	"word embeddings",
	"named entity recognition",
	"sentiment analysis",
	"question answering",
	"coreference resolution",
	"language model pretraining",
	"low resource translation",
	"discourse parsing",
	"summarization evaluation",
	"code switching",
	"morphological analysis",
	"dialogue state tracking",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	queryFile := flag.String("queries", "", "file with one query per line (built-in list when empty)")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		q, err := readQueries(*queryFile)
		if err == nil && len(q) == 0 {
			err = fmt.Errorf("no queries")
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", *queryFile, err)
			os.Exit(1)
		}
		queries = q
	}

	r := &runner{
		base:        strings.TrimRight(*baseURL, "/"),
		concurrency: max(1, *concurrency),
		requests:    scenarios(queries),
	}
	if !*asJSON {
		fmt.Fprintf(os.Stderr, "load testing %s with %d workers for %s (%d request shapes)\n",
			r.base, r.concurrency, *duration, len(r.requests))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	rep := r.run(ctx).report()
	if *asJSON {
		err := rep.writeJSON(os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	} else {
		rep.writeText(os.Stdout)
	}
	if rep.Requests == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the searcher running?")
		os.Exit(1)
	}
}

// scenarios expands each query into the request shapes the API sees:
// unfiltered, venue-filtered, year-bounded and year-sorted with an offset.
func scenarios(queries []string) []url.Values {
	out := make([]url.Values, 0, len(queries)*4)
	for _, q := range queries {
		out = append(out,
			url.Values{"q": {q}, "limit": {"10"}},
			url.Values{"q": {q}, "venue": {"acl,emnlp"}, "limit": {"10"}},
			url.Values{"q": {q}, "year_min": {"2015"}, "year_max": {"2020"}, "limit": {"20"}},
			url.Values{"q": {q}, "sort": {"year"}, "offset": {"10"}, "limit": {"10"}},
		)
	}
	return out
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	return out, sc.Err()
}
