package main

import (
	"fmt"

	"github.com/cruxvc/crux/pkg/repo"
	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branch [name]",
		Short: "List branches or create a new one at HEAD",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if len(args) == 0 {
				current, _ := r.CurrentBranch()
				branches, err := r.ListBranches()
				if err != nil {
					return err
				}
				for _, b := range branches {
					marker := " "
					if b == current {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, b)
				}
				return nil
			}

			head, err := r.ResolveRef("HEAD")
			if err != nil {
				return fmt.Errorf("branch: %w", err)
			}
			return r.CreateBranch(args[0], head)
		},
	}
}
