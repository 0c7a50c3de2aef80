package main

import (
	"context"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

// NewRootCommand builds the CLI. Running it without a subcommand serves
// the HTTP API.
func NewRootCommand(ctx context.Context) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "transmute",
		Short:         "File conversion and lifecycle service.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(ctx, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file (default ./config.yaml or ./configs/config.yaml)")

	root.AddCommand(newServeCommand(ctx, opts))
	root.AddCommand(newFormatsCommand(opts))
	root.AddCommand(newSweepCommand(ctx, opts))
	return root
}
