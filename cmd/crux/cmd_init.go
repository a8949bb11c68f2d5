package main

import (
	"fmt"
	"os"

	"github.com/cruxvc/crux/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty crux repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			if path != "." {
				if err := os.MkdirAll(path, 0o755); err != nil {
					return err
				}
			}

			r, err := repo.Init(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty crux repository in %s\n", r.CruxDir)
			return nil
		},
	}
}
