package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnwee/feedrank/internal/feature"
	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/ranking"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Build a reader's feed from a YAML seed corpus",
		Long: `Feed loads a seed corpus into the in-memory store and builds the ranked
feed for one reader exactly as the server's GET /feed would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seedPath, _ := cmd.Flags().GetString("seed")
			userID, _ := cmd.Flags().GetString("user")
			tag, _ := cmd.Flags().GetString("tag")
			perPage, _ := cmd.Flags().GetInt("per-page")
			factors, _ := cmd.Flags().GetStringSlice("factors")
			level, _ := cmd.Flags().GetInt("experience-level")
			nowRaw, _ := cmd.Flags().GetString("now")

			now := time.Now()
			if nowRaw != "" {
				parsed, err := time.Parse(time.RFC3339, nowRaw)
				if err != nil {
					return fmt.Errorf("--now must be RFC3339: %w", err)
				}
				now = parsed
			}

			store, err := feature.LoadSeed(seedPath)
			if err != nil {
				return err
			}
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}

			service := feed.NewService(store, engine, feed.Options{
				DefaultPageSize:        ranking.DefaultPageSize,
				MaxPageSize:            max(perPage, ranking.DefaultPageSize),
				DefaultExperienceLevel: level,
				Logger:                 cliLogger(cmd),
			})

			result, err := service.Build(cmd.Context(), feed.Request{
				UserID:  userID,
				Tag:     tag,
				Scoring: ranking.Config{SelectedFactors: factors},
				PerPage: perPage,
				Now:     now,
			})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tAUTHOR\tPUBLISHED\tTITLE")
			for i, a := range result.Articles {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", strconv.Itoa(i+1), a.ID, a.AuthorID, a.PublishedAt.Format(time.RFC3339), a.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("seed", "", "YAML seed corpus (required)")
	cmd.Flags().String("user", "", "reader id; empty builds an anonymous feed")
	cmd.Flags().String("tag", "", "restrict candidates to one tag")
	cmd.Flags().Int("per-page", 0, "feed size (<= 0 means 50)")
	cmd.Flags().StringSlice("factors", nil, "comma-separated factor names (default: all)")
	cmd.Flags().Int("experience-level", 5, "experience level for readers without one")
	cmd.Flags().String("now", "", "RFC3339 time that anchors day counts (default: current time)")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}
