package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/onnwee/feedrank/internal/ranking"
)

// rankFile is the candidate file read by "rankctl rank". JSON documents are
// detected by a leading '{'; anything else is parsed as YAML.
type rankFile struct {
	ranking.Config `yaml:",inline"`
	PerPage        int                 `json:"per_page" yaml:"per_page"`
	Page           int                 `json:"page" yaml:"page"`
	Candidates     []ranking.Candidate `json:"candidates" yaml:"candidates"`
}

type rankOutput struct {
	IDs          []string              `json:"ids"`
	Items        []ranking.ScoredItem  `json:"items"`
	Explanations []ranking.Explanation `json:"explanations,omitempty"`
	PerPage      int                   `json:"per_page"`
}

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank <file|->",
		Short: "Rank a YAML or JSON candidate file",
		Long: `Rank scores every candidate in the file, keeps the top per_page by score
and prints them newest first. The file carries the candidates together with
optional factors, overrides, context_parameters and per_page. Use "-" to read
from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readRankFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("per-page") {
				doc.PerPage, _ = cmd.Flags().GetInt("per-page")
			}
			for i, c := range doc.Candidates {
				if c.ID == "" {
					return fmt.Errorf("candidate %d has no id", i)
				}
			}

			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}

			items, err := engine.RankItems(cmd.Context(), doc.Candidates, doc.Config, doc.PerPage, doc.Page)
			if err != nil {
				return err
			}
			out := rankOutput{IDs: ranking.IDs(items), Items: items, PerPage: doc.PerPage}
			if out.PerPage <= 0 {
				out.PerPage = ranking.DefaultPageSize
			}
			if explain, _ := cmd.Flags().GetBool("explain"); explain {
				out.Explanations = explainItems(engine, doc, items)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return printRanked(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Int("per-page", 0, "window size, overriding per_page in the file (<= 0 means 50)")
	cmd.Flags().Bool("explain", false, "include per-factor contributions for the returned items")
	return cmd
}

func readRankFile(stdin io.Reader, path string) (*rankFile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	return parseRankFile(data)
}

func parseRankFile(data []byte) (*rankFile, error) {
	var doc rankFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("candidate file is empty")
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid JSON candidate file: %w", err)
		}
		return &doc, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(trimmed))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid YAML candidate file: %w", err)
	}
	return &doc, nil
}

// explainItems returns explanations for the windowed items in output order.
func explainItems(engine *ranking.Engine, doc *rankFile, items []ranking.ScoredItem) []ranking.Explanation {
	byID := make(map[string]ranking.Candidate, len(doc.Candidates))
	for _, c := range doc.Candidates {
		byID[c.ID] = c
	}
	window := make([]ranking.Candidate, 0, len(items))
	for _, it := range items {
		window = append(window, byID[it.ID])
	}
	return engine.Explain(window, doc.Config)
}

func printRanked(w io.Writer, out rankOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tSCORE\tPUBLISHED")
	for i, it := range out.Items {
		fmt.Fprintf(tw, "%d\t%s\t%.6g\t%s\n", i+1, it.ID, it.Score, it.PublishedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range out.Explanations {
		fmt.Fprintf(w, "\n%s  score=%.6g\n", e.ID, e.Score)
		for _, c := range e.Contributions {
			value := "missing"
			if c.Value != nil {
				value = fmt.Sprintf("%g", *c.Value)
			}
			how := "step"
			if !c.Matched {
				how = "fallback"
			}
			fmt.Fprintf(w, "  %-28s %s=%s -> %g (%s)\n", c.Factor, c.FeatureKey, value, c.Weight, how)
		}
	}
	return nil
}
