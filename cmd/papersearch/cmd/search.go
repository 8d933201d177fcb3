package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/rerank"
)

type searchOptions struct {
	input      string
	normalized bool
	dataDir    string
	yearMin    int
	yearMax    int
	venues     []string
	sort       string
	limit      int
	offset     int
	format     string
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var so searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank papers against a query",
		Long: `Rank papers by TF-IDF cosine distance to the query, then move papers
whose year, venue or authors appear in the query to the front.

The index is the current snapshot unless --input names a JSONL file, in
which case it is fitted in memory and not saved.`,
		Example: `  papersearch search neural machine translation
  papersearch search "parsing acl 2019" --year-min 2015 --venue acl,emnlp
  papersearch search semantic parsing --input dblp.jsonl --sort year --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := newEngine(opts.cfg, so.dataDir)
			if err != nil {
				return err
			}
			if so.input != "" {
				recs, _, err := readCorpus(ctx, opts.cfg, so.input, so.normalized)
				if err != nil {
					return err
				}
				if err := engine.Build(ctx, recs); err != nil {
					return err
				}
			} else if err := engine.Load(ctx); err != nil {
				return fmt.Errorf("%w (build one first, or pass --input)", err)
			}

			passes, err := rerank.PassesByName(opts.cfg.Search.RerankPasses)
			if err != nil {
				return err
			}
			exec := executor.New(engine, rerank.NewPipeline(passes...), executor.Config{
				DefaultLimit: opts.cfg.Search.DefaultLimit,
				MaxLimit:     opts.cfg.Search.MaxResults,
			})

			req := executor.Request{
				Query:  strings.Join(args, " "),
				Limit:  so.limit,
				Offset: so.offset,
				Filters: executor.Filters{
					Venues: so.venues,
					Sort:   so.sort,
				},
			}
			if cmd.Flags().Changed("year-min") {
				req.Filters.YearMin = &so.yearMin
			}
			if cmd.Flags().Changed("year-max") {
				req.Filters.YearMax = &so.yearMax
			}
			res, err := exec.Search(ctx, req)
			if err != nil {
				return err
			}
			res.Query = req.Query

			switch so.format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "text":
				printResults(cmd.OutOrStdout(), res)
				return nil
			default:
				return fmt.Errorf("unknown format %q", so.format)
			}
		},
	}
	f := cmd.Flags()
	f.StringVarP(&so.input, "input", "i", "", "fit the index over this JSONL file instead of loading the snapshot")
	f.BoolVar(&so.normalized, "normalized", false, "--input holds normalized papers rather than raw DBLP lines")
	f.StringVar(&so.dataDir, "data-dir", "", "snapshot directory (overrides indexer.dataDir)")
	f.IntVar(&so.yearMin, "year-min", 0, "earliest publication year, inclusive")
	f.IntVar(&so.yearMax, "year-max", 0, "latest publication year, inclusive")
	f.StringSliceVar(&so.venues, "venue", nil, "keep only these venues (repeatable or comma-separated)")
	f.StringVar(&so.sort, "sort", "relevance", "result order: relevance, year")
	f.IntVarP(&so.limit, "limit", "n", 0, "results per page (config default when 0)")
	f.IntVar(&so.offset, "offset", 0, "results to skip")
	f.StringVarP(&so.format, "format", "f", "text", "output format: text, json")
	return cmd
}

func printResults(w io.Writer, res *executor.SearchResult) {
	if res.TotalHits == 0 {
		fmt.Fprintf(w, "no papers match %q\n", res.Query)
		return
	}
	fmt.Fprintf(w, "%d matches for %q\n\n", res.TotalHits, res.Query)
	for i, item := range res.Results {
		r := item.Record
		fmt.Fprintf(w, "%3d. %s\n", res.Offset+i+1, r.Title())
		fmt.Fprintf(w, "     %s, %d  distance %.4f\n", r.Venue(), r.Year(), item.Distance)
		if authors := r.Authors(); len(authors) > 0 {
			fmt.Fprintf(w, "     %s\n", strings.Join(authors, ", "))
		}
		if r.URL() != "" {
			fmt.Fprintf(w, "     %s\n", r.URL())
		}
	}
}
