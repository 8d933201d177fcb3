package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type runner struct {
	base        string
	concurrency int
	requests    []url.Values
	client      *http.Client
}

// sample is one finished request. status is 0 when the transport failed.
type sample struct {
	latency time.Duration
	status  int
	hits    int
	err     error
}

// recorder collects samples from all workers.
type recorder struct {
	mu      sync.Mutex
	started time.Time
	elapsed time.Duration
	samples []sample
}

func (rec *recorder) add(s sample) {
	rec.mu.Lock()
	rec.samples = append(rec.samples, s)
	rec.mu.Unlock()
}

// run hammers the searcher until ctx ends. Worker i starts at request
// shape i, so the workers spread over the shapes from the first request.
func (r *runner) run(ctx context.Context) *recorder {
	client := r.client
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: r.concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	rec := &recorder{started: time.Now(), samples: make([]sample, 0, 4096)}

	var g errgroup.Group
	for w := range r.concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				s := r.search(ctx, client, r.requests[i%len(r.requests)])
				if ctx.Err() != nil {
					// cut off by the deadline, not a real answer
					return nil
				}
				rec.add(s)
			}
			return nil
		})
	}
	_ = g.Wait()
	rec.elapsed = time.Since(rec.started)
	return rec
}

func (r *runner) search(ctx context.Context, client *http.Client, params url.Values) sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	var body struct {
		TotalHits int `json:"total_hits"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	s := sample{latency: time.Since(start), status: resp.StatusCode, hits: body.TotalHits}
	if resp.StatusCode == http.StatusOK && err != nil {
		s.err = fmt.Errorf("decoding response: %w", err)
	}
	return s
}
