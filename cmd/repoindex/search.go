package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/service"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		mode   string
		asJSON bool
		opts   service.SearchOptions
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed repositories",
		Long: `Search indexed repositories by keyword, by meaning or both.

Modes:
  keyword   full-text match, snippets mark hits with [brackets]
  semantic  nearest files by embedding distance
  hybrid    weighted union of both (default)

Examples:
  repoindex search "user login"
  repoindex search handleRequest --mode keyword --repo web
  repoindex search "retry with backoff" --limit 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := searcher.ParseMode(mode)
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			resp, err := svc.Search(cmd.Context(), query, parsed, opts)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp.Results)
			}
			printResults(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(searcher.ModeHybrid), "search mode: keyword, semantic or hybrid")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "restrict results to one repository")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.KeywordWeight, "keyword-weight", 0, "hybrid weight of the keyword score")
	cmd.Flags().Float64Var(&opts.SemanticWeight, "semantic-weight", 0, "hybrid weight of the semantic score")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printResults(w io.Writer, resp *searcher.Response) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %.3f  %s:%s\n", i+1, r.Score, r.Repo, r.Path)
		if r.Snippet != nil {
			fmt.Fprintf(w, "      %s\n", strings.Join(strings.Fields(*r.Snippet), " "))
		}
	}
	fmt.Fprintf(w, "\n%d results (%s, %s)\n", len(resp.Results), resp.Mode, resp.Duration.Round(time.Millisecond))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
