package cmd

import (
	"github.com/spf13/cobra"
)

func newFormsCmd(get appFunc, printer printFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "forms <userId>",
		Short: "List the web form webhooks registered by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forms, err := get().services.Forms.ListWebForms(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printer(cmd, forms)
		},
	}
}
