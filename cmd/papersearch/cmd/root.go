// Package cmd holds the papersearch subcommands.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/logger"
)

type globalOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "papersearch",
		Short: "Search paper metadata with TF-IDF ranking and query-aware reranking",
		Long: `papersearch works on local files.

Filter a raw DBLP dump down to the configured venues, build a snapshot
from it, inspect a snapshot, and search either a snapshot or a JSONL
file directly. The keys subcommands manage the ingestion service's API
keys and need postgres configured.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			// stdout carries results
			slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, "text"))
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newFilterCmd(opts))
	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newKeysCmd(opts))
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// readCorpus reads raw DBLP lines, or normalized papers when normalized is
// set, filtered to the configured venues.
func readCorpus(ctx context.Context, cfg *config.Config, path string, normalized bool) ([]record.Record, ingestion.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ingestion.Stats{}, err
	}
	defer f.Close()
	reader := ingestion.NewReader(cfg.Corpus.Venues, nil)
	if normalized {
		return reader.ReadPapers(ctx, f)
	}
	return reader.ReadJSONL(ctx, f)
}

func newEngine(cfg *config.Config, dataDir string) (*indexer.Engine, error) {
	ic := cfg.Indexer
	if dataDir != "" {
		ic.DataDir = dataDir
	}
	return indexer.NewEngine(ic, nil)
}
