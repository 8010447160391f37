package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout <userId>",
		Short: "Revoke a user's stored credential and remove their web forms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := get().services.Tokens.Logout(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged out user %s\n", args[0])

			return nil
		},
	}
}
