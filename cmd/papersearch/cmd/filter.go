package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
)

func newFilterCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "filter <dblp.jsonl>",
		Short: "Keep papers from the configured venues and write them as normalized JSONL",
		Example: `  papersearch filter dblp.jsonl -o papers.jsonl
  papersearch filter dblp.jsonl --config configs/development.yaml > papers.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, stats, err := readCorpus(cmd.Context(), opts.cfg, args[0], false)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			if err := ingestion.WriteJSONL(bw, recs); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d lines: kept %d, filtered %d, malformed %d\n",
				stats.Lines, stats.Kept, stats.Filtered, stats.Malformed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}
