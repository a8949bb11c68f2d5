package main

import (
	"fmt"
	"io"

	"github.com/cruxvc/crux/pkg/object"
	"github.com/cruxvc/crux/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName := args[0]

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			current, err := r.CurrentBranch()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "merging %s into %s...\n", branchName, current)

			report, err := r.Merge(branchName)
			if err != nil {
				return err
			}

			switch {
			case report.AlreadyUpToDate:
				fmt.Fprintln(out, "already up to date")
			case report.FastForward:
				fmt.Fprintf(out, "fast-forward to %s\n", shortHash(report.MergeCommit))
			case report.Failed():
				printFailures(out, report)
				return fmt.Errorf("merge aborted")
			case report.HasConflicts():
				for _, p := range report.Conflicts {
					fmt.Fprintf(out, "  %s: CONFLICT\n", p)
				}
				fmt.Fprintf(out, "merge completed with %d conflicted path", len(report.Conflicts))
				if len(report.Conflicts) != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "fix conflicts and run crux commit")
			default:
				fmt.Fprintln(out, "merge completed cleanly")
				fmt.Fprintf(out, "[%s %s] Merge branch '%s'\n", current, shortHash(report.MergeCommit), branchName)
			}

			return nil
		},
	}
}

func printFailures(out io.Writer, report *repo.MergeReport) {
	for path, reason := range report.FailingPaths {
		fmt.Fprintf(out, "  %s: %s\n", path, reason)
	}
}

func shortHash(h object.Hash) string {
	s := string(h)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
