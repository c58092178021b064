package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/service"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		repo string
		opts service.IndexOptions
	)

	cmd := &cobra.Command{
		Use:   "index <root>",
		Short: "Index a repository incrementally",
		Long: `Index the files under <root>. Only files whose content hash changed since
the last run are re-embedded; files removed from disk are dropped.

Examples:
  repoindex index ~/src/web
  repoindex index ~/src/web --repo web --source https://example.com/web.git
  repoindex index . --include 'src/**/*.ts' --exclude '**/dist/**'
  repoindex index . --force --reconcile`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexing %s...\n", root)

			result, err := svc.Index(cmd.Context(), root, repo, opts)
			if result != nil && result.Summary != nil {
				printSummary(out, result.Summary)
			}
			if result != nil && result.Reconcile != nil {
				printReconcile(out, result.Reconcile)
			}
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "repository name (default: directory name)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "origin URL to record for the repository")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "re-embed every file ignoring content hashes")
	cmd.Flags().StringSliceVar(&opts.Include, "include", nil, "glob of files to index (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "glob of files to skip (repeatable)")
	cmd.Flags().BoolVar(&opts.Reconcile, "reconcile", false, "repair the vector store after indexing")
	return cmd
}

func newReconcileCmd(a *app) *cobra.Command {
	var repo string

	cmd := &cobra.Command{
		Use:   "reconcile <root>",
		Short: "Repair the vector store against the metadata index",
		Long: `Compare every indexed file with its stored vector, re-embed missing or
outdated vectors and delete vectors with no metadata record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			name := repo
			if name == "" {
				name = filepath.Base(root)
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			summary, err := svc.Reconcile(cmd.Context(), root, name)
			if summary != nil {
				printReconcile(cmd.OutOrStdout(), summary)
			}
			if err != nil {
				return fmt.Errorf("reconciliation failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "repository name (default: directory name)")
	return cmd
}

func printSummary(w io.Writer, s *indexer.Summary) {
	fmt.Fprintf(w, "\nRepository %s done in %s\n", s.Repo, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Files:   %d scanned, %d indexed, %d unchanged, %d binary, %d deleted\n",
		s.Scanned, s.Indexed, s.SkippedUnchanged, s.SkippedBinary, s.Deleted)
	if s.Failed > 0 || s.VectorErrors > 0 {
		fmt.Fprintf(w, "  Errors:  %d files failed, %d vector writes failed\n", s.Failed, s.VectorErrors)
	}
	for _, msg := range s.Errors {
		fmt.Fprintf(w, "    %s\n", msg)
	}
}

func printReconcile(w io.Writer, s *indexer.ReconcileSummary) {
	fmt.Fprintf(w, "\nReconciled %s in %s\n", s.Repo, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Vectors: %d checked, %d repaired, %d orphans deleted, %d stale, %d failed\n",
		s.Checked, s.Repaired, s.OrphansDeleted, s.Stale, s.Failed)
	for _, msg := range s.Errors {
		fmt.Fprintf(w, "    %s\n", msg)
	}
}
