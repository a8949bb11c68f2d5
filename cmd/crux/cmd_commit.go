package main

import (
	"fmt"

	"github.com/cruxvc/crux/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string
	var signKey string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the staged tree as a new commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if author == "" {
				author = r.Config.User.Name
			}

			var signer repo.CommitSigner
			if cmd.Flags().Changed("sign-key") {
				s, keyPath, err := newSSHCommitSigner(signKey)
				if err != nil {
					return err
				}
				signer = s
				fmt.Fprintf(cmd.OutOrStdout(), "signing with %s\n", keyPath)
			}

			hash, err := r.CommitWithSigner(message, author, signer)
			if err != nil {
				return err
			}

			short := string(hash)
			if len(short) > 8 {
				short = short[:8]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", short, message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "author name (defaults to config user)")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "SSH private key to sign the commit with")
	return cmd
}
