package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/storage"
)

// repositoryJSON is the --json shape of a registry entry
type repositoryJSON struct {
	Name          string     `json:"name"`
	Source        *string    `json:"source"`
	LastIndexedAt *time.Time `json:"last_indexed_at"`
	LastError     *string    `json:"last_error"`
	FileCount     int        `json:"file_count"`
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			repos, err := svc.ListRepositories(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				entries := make([]repositoryJSON, 0, len(repos))
				for _, r := range repos {
					entries = append(entries, repositoryJSON{
						Name:          r.Name,
						Source:        r.Source,
						LastIndexedAt: r.LastIndexedAt,
						LastError:     r.LastError,
						FileCount:     r.FileCount,
					})
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			return printRepositories(cmd.OutOrStdout(), repos)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print repositories as JSON")
	return cmd
}

func printRepositories(w io.Writer, repos []*storage.Repository) error {
	if len(repos) == 0 {
		fmt.Fprintln(w, "No repositories indexed.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILES\tLAST INDEXED\tSOURCE\tLAST ERROR")
	for _, r := range repos {
		indexed := "never"
		if r.LastIndexedAt != nil {
			indexed = r.LastIndexedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Name, r.FileCount, indexed, orDash(r.Source), orDash(r.LastError))
	}
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
