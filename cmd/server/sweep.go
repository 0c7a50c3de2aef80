package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx context.Context, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one cleanup pass and print what was removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, cleanup, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.reaper.RunOnce(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
