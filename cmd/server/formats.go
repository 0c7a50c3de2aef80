package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/converter/registry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newFormatsCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "formats [format]",
		Short: "List conversion targets, for every format or for one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			reg := newRegistry(cfg, log)

			matrix := reg.Matrix()
			if len(args) == 1 {
				f := converter.Normalize(args[0])
				matrix = map[string][]string{f: reg.CompatibleFormats(f)}
			}
			return writeFormats(cmd.OutOrStdout(), output, matrix, reg)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func writeFormats(w io.Writer, output string, matrix map[string][]string, reg *registry.Registry) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(matrix)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(matrix)
	case "text":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	fmt.Fprintf(w, "converters: %s\n", strings.Join(reg.Names(), ", "))
	for _, in := range sortedKeys(matrix) {
		targets := matrix[in]
		if len(targets) == 0 {
			fmt.Fprintf(w, "%s -> (none)\n", in)
			continue
		}
		fmt.Fprintf(w, "%s -> %s\n", in, strings.Join(targets, ", "))
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
