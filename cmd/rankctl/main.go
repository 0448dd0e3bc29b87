// Package main is rankctl, a CLI for offline ranking experiments: rank a
// candidate file, build a feed from a seed corpus, inspect the factor
// registry and validate calibration files.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/onnwee/feedrank/internal/ranking"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	outputText = "text"
	outputJSON = "json"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rankctl",
		Short: "Offline tooling for the feedrank relevance engine",
		Long: `rankctl runs the feedrank scoring engine outside the server.

It ranks candidate files, builds feeds from a YAML seed corpus, lists the
factor registry and validates calibration files before they are deployed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output != outputText && output != outputJSON {
				return fmt.Errorf("unknown output format %q (want text or json)", output)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("calibration", "", "ranking calibration JSON file (default: built-in weights)")
	rootCmd.PersistentFlags().StringP("output", "o", outputText, "output format: text or json")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log selection diagnostics to stderr")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRankCmd(),
		newFeedCmd(),
		newFactorsCmd(),
		newValidateCalibrationCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "rankctl %s\n", version)
			return err
		},
	}
}

// newEngine builds an engine over the --calibration registry.
func newEngine(cmd *cobra.Command) (*ranking.Engine, error) {
	path, _ := cmd.Flags().GetString("calibration")
	registry, err := ranking.LoadCalibration(path)
	if err != nil {
		return nil, err
	}
	return ranking.NewEngine(registry, ranking.WithLogger(cliLogger(cmd))), nil
}

// cliLogger logs to stderr at warn level, or debug with --verbose.
func cliLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func jsonOutput(cmd *cobra.Command) bool {
	output, _ := cmd.Flags().GetString("output")
	return output == outputJSON
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
