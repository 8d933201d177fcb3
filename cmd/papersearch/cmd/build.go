package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd(opts *globalOptions) *cobra.Command {
	var (
		dataDir    string
		normalized bool
	)
	cmd := &cobra.Command{
		Use:   "build <papers.jsonl>",
		Short: "Fit the index over a JSONL file and write a snapshot",
		Example: `  papersearch build dblp.jsonl
  papersearch build papers.jsonl --normalized --data-dir /tmp/index`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recs, stats, err := readCorpus(ctx, opts.cfg, args[0], normalized)
			if err != nil {
				return err
			}
			engine, err := newEngine(opts.cfg, dataDir)
			if err != nil {
				return err
			}
			if err := engine.Build(ctx, recs); err != nil {
				return err
			}
			path, err := engine.Save(ctx)
			if err != nil {
				return err
			}
			s := engine.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n  documents:   %d (of %d lines)\n  vocabulary:  %d\n  fingerprint: %s\n",
				path, s.Documents, stats.Lines, s.Vocabulary, s.Fingerprint)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "snapshot directory (overrides indexer.dataDir)")
	cmd.Flags().BoolVar(&normalized, "normalized", false, "input holds normalized papers rather than raw DBLP lines")
	return cmd
}
