package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/postgres"
)

type keyStore interface {
	CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error)
	RevokeKey(ctx context.Context, keyOrID string) error
	ListKeys(ctx context.Context) ([]apikey.KeyInfo, error)
}

// openKeyStore is swapped out in tests.
var openKeyStore = func(ctx context.Context, cfg *config.Config) (keyStore, func() error, error) {
	if !cfg.Postgres.Enabled() {
		return nil, nil, errors.New("postgres.host is not configured; keys live in the database")
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	v := apikey.NewValidator(db)
	if err := v.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return v, db.Close, nil
}

func newKeysCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the ingestion service",
	}
	cmd.AddCommand(newKeysCreateCmd(opts), newKeysRevokeCmd(opts), newKeysListCmd(opts))
	return cmd
}

func withKeyStore(cmd *cobra.Command, opts *globalOptions, fn func(keyStore) error) error {
	store, closeFn, err := openKeyStore(cmd.Context(), opts.cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(store)
}

func newKeysCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		rateLimit int
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a key; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rateLimit <= 0 {
				rateLimit = opts.cfg.Auth.DefaultRateLimit
			}
			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().Add(expiresIn).UTC()
				expiresAt = &t
			}
			return withKeyStore(cmd, opts, func(store keyStore) error {
				key, err := store.CreateKey(cmd.Context(), args[0], rateLimit, expiresAt)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", key)
				fmt.Fprintf(cmd.ErrOrStderr(), "created key %q (%d req/min, expires %s); it cannot be shown again\n",
					args[0], rateLimit, formatExpiry(expiresAt))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "ingest requests per minute (auth.defaultRateLimit when 0)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime, e.g. 720h (never expires when 0)")
	return cmd
}

func newKeysRevokeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-or-id>",
		Short: "Revoke a key by its raw value or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyStore(cmd, opts, func(store keyStore) error {
				if err := store.RevokeKey(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("revoking key: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "revoked")
				return nil
			})
		},
	}
}

func newKeysListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyStore(cmd, opts, func(store keyStore) error {
				keys, err := store.ListKeys(cmd.Context())
				if err != nil {
					return err
				}
				return printKeys(cmd.OutOrStdout(), keys)
			})
		},
	}
}

func printKeys(w io.Writer, keys []apikey.KeyInfo) error {
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "no active keys")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE/MIN\tCREATED\tEXPIRES\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			k.ID, k.Name, k.RateLimit, k.CreatedAt.Format(time.RFC3339), formatExpiry(k.ExpiresAt), lastUsed)
	}
	return tw.Flush()
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
