package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/feedrank/internal/ranking"
)

func newFactorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "factors",
		Short: "List the factor registry in declaration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defs := engine.Registry().Definitions()

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string][]ranking.FactorDefinition{"factors": defs})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFEATURE\tFALLBACK\tSTEPS")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%g\t%s\n", d.Name, d.FeatureKey, d.Fallback, formatSteps(d.Steps))
			}
			return tw.Flush()
		},
	}
}

func newValidateCalibrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-calibration <file>",
		Short: "Check a calibration file the way the server does at startup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ranking.LoadCalibration(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": true, "factors": registry.Len()})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d factors)\n", args[0], registry.Len())
			return err
		},
	}
}

func formatSteps(steps []ranking.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("%d:%g", s.Threshold, s.Weight)
	}
	return strings.Join(parts, " ")
}
