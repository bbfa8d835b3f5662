package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
)

func newCapabilitiesCmd(opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List the capabilities enabled by the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			registry, err := a.buildRegistry()
			if err != nil {
				return err
			}
			printCapabilities(cmd.OutOrStdout(), registry.Descriptors(), verbose)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the argument schema of each capability")
	return cmd
}

func printCapabilities(w io.Writer, descriptors []capability.Descriptor, verbose bool) {
	if len(descriptors) == 0 {
		fmt.Fprintln(w, color.YellowString("No capability enabled: set backends.prometheus_url, loki_url or grafana_url."))
		return
	}
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\n  %s\n", color.CyanString(d.Name), d.Description)
		if !verbose {
			continue
		}
		if props, ok := d.Parameters["properties"].(map[string]interface{}); ok {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				schema, _ := json.Marshal(props[name])
				fmt.Fprintf(w, "    %s %s\n", name, schema)
			}
		}
	}
}
