package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/segment"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the header and size of the current snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(opts.cfg, dataDir)
			if err != nil {
				return err
			}
			path := engine.SnapshotPath()
			blob, err := segment.ReadFile(path)
			if err != nil {
				return err
			}
			h, err := segment.ParseHeader(blob)
			if err != nil {
				return err
			}
			if err := engine.Load(cmd.Context()); err != nil {
				return err
			}
			s := engine.Stats()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot     %s\n", path)
			fmt.Fprintf(out, "version      %d\n", h.Version)
			fmt.Fprintf(out, "compression  %s\n", h.Compression)
			fmt.Fprintf(out, "body         %d bytes (%d uncompressed)\n", h.BodyLen, h.RawLen)
			fmt.Fprintf(out, "fingerprint  %s\n", h.Fingerprint())
			fmt.Fprintf(out, "documents    %d\n", s.Documents)
			fmt.Fprintf(out, "vocabulary   %d\n", s.Vocabulary)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "snapshot directory (overrides indexer.dataDir)")
	return cmd
}
