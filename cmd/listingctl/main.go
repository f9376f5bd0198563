// Command listingctl inspects shards and identifiers from the shell, using
// the same configuration and wiring as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/listing-api/internal/app"
	"github.com/yourorg/listing-api/internal/browse"
	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/internal/env"
	"github.com/yourorg/listing-api/internal/idcodec"
	"github.com/yourorg/listing-api/internal/logger"
	"github.com/yourorg/listing-api/internal/resolver"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	verbose bool
	asJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "listingctl",
		Short:         "Inspect listing shards, locations and property ids",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(newLocationCmd(), newIDCmd(opts), newLoadCmd(opts), newResolveCmd(opts))
	return root
}

// locationCmd maps free text to a catalog location
func newLocationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "location <text>",
		Short: "Resolve free text to a catalog location key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := canon.NewLocationResolver(shard.DefaultCatalog()).Resolve(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newIDCmd(opts *options) *cobra.Command {
	idCmd := &cobra.Command{
		Use:   "id",
		Short: "Encode and decode shareable property ids",
	}
	idCmd.AddCommand(&cobra.Command{
		Use:   "encode <category> <location> <ordinal>",
		Short: "Build a property id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, ok := shard.ParseCategory(args[0])
			if !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("ordinal must be an integer")
			}
			id, err := idcodec.Mint(cat, args[1], n)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}, &cobra.Command{
		Use:   "decode <id>",
		Short: "Split a property id into its hint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid, ok := idcodec.DecodeDurable(args[0]); ok {
				return printOut(cmd, opts, map[string]any{"durable_id": pid})
			}
			h, err := idcodec.Decode(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return printOut(cmd, opts, map[string]any{"category": h.Category, "location": h.Location, "ordinal": h.Ordinal})
		},
	})
	return idCmd
}

func newLoadCmd(opts *options) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "load <location>",
		Short: "Load a shard through the cache and print its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, ok := shard.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q", category)
			}
			a, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			key, err := a.Locations.Resolve(args[0])
			if err != nil {
				return err
			}
			recs, err := a.Loader.Load(cmd.Context(), session.New(""), cat, key)
			if err != nil {
				return err
			}
			items := browse.Items(cat, key, recs)
			if opts.asJSON {
				return printOut(cmd, opts, items)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNATIVE\tPRICE\tADDRESS")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Record.NativeID, it.Record.Price, it.Record.Address())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", string(shard.Sale), "sale or lease")
	return cmd
}

func newResolveCmd(opts *options) *cobra.Command {
	var nativeKey string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a property id through every tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Resolver.Resolve(cmd.Context(), session.New(""), resolver.Request{ID: args[0], NativeKey: nativeKey})
			if err != nil {
				return err
			}
			return printOut(cmd, opts, map[string]any{"tier": res.Tier, "record": res.Record})
		},
	}
	cmd.Flags().StringVarP(&nativeKey, "key", "k", "", "native key carried by the shared link")
	return cmd
}

func build(ctx context.Context, opts *options) (*app.App, error) {
	cfg, err := env.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	zl, err := logger.New(level)
	if err != nil {
		zl = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return app.Build(ctx, cfg, zl, app.Options{SkipFavorites: true, SkipRefresher: true})
}

func printOut(cmd *cobra.Command, opts *options, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if !opts.asJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
