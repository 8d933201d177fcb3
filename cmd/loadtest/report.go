package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"
)

type latencySummary struct {
	Min time.Duration `json:"min_ns"`
	Avg time.Duration `json:"avg_ns"`
	P50 time.Duration `json:"p50_ns"`
	P90 time.Duration `json:"p90_ns"`
	P99 time.Duration `json:"p99_ns"`
	Max time.Duration `json:"max_ns"`
}

type report struct {
	Requests    int            `json:"requests"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	ZeroResults int            `json:"zero_results"`
	Throughput  float64        `json:"requests_per_sec"`
	Latency     latencySummary `json:"latency"`
	StatusCodes map[string]int `json:"status_codes"`
}

// report summarizes the samples. Latency covers every request that got an
// HTTP response; zero results count only successful ones.
func (rec *recorder) report() report {
	rec.mu.Lock()
	samples := slices.Clone(rec.samples)
	elapsed := rec.elapsed
	rec.mu.Unlock()

	rep := report{Requests: len(samples), StatusCodes: map[string]int{}}
	var latencies []time.Duration
	for _, s := range samples {
		ok := s.err == nil && s.status >= 200 && s.status < 300
		if ok {
			rep.Succeeded++
			if s.hits == 0 {
				rep.ZeroResults++
			}
		} else {
			rep.Failed++
		}
		if s.status == 0 {
			rep.StatusCodes["transport_error"]++
			continue
		}
		rep.StatusCodes[strconv.Itoa(s.status)]++
		latencies = append(latencies, s.latency)
	}
	if elapsed > 0 {
		rep.Throughput = float64(rep.Requests) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return rep
	}

	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	rep.Latency = latencySummary{
		Min: latencies[0],
		Avg: sum / time.Duration(len(latencies)),
		P50: percentile(latencies, 50),
		P90: percentile(latencies, 90),
		P99: percentile(latencies, 99),
		Max: latencies[len(latencies)-1],
	}
	return rep
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func (rep report) writeText(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "requests\t%d\n", rep.Requests)
	fmt.Fprintf(tw, "succeeded\t%d\n", rep.Succeeded)
	fmt.Fprintf(tw, "failed\t%d\t%s\n", rep.Failed, pct(rep.Failed, rep.Requests))
	fmt.Fprintf(tw, "zero results\t%d\t%s\n", rep.ZeroResults, pct(rep.ZeroResults, rep.Succeeded))
	fmt.Fprintf(tw, "throughput\t%.1f req/s\n", rep.Throughput)
	fmt.Fprintln(tw, "\t")
	l := rep.Latency
	fmt.Fprintf(tw, "latency\tmin %s\tavg %s\tmax %s\n", l.Min, l.Avg, l.Max)
	fmt.Fprintf(tw, "\tp50 %s\tp90 %s\tp99 %s\n", l.P50, l.P90, l.P99)
	fmt.Fprintln(tw, "\t")

	codes := make([]string, 0, len(rep.StatusCodes))
	for c := range rep.StatusCodes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Fprintf(tw, "status %s\t%d\n", c, rep.StatusCodes[c])
	}
	tw.Flush()
}

func (rep report) writeJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func pct(n, of int) string {
	if of == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(of)*100)
}
