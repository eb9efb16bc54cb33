package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "delete <email-id>",
		Short: "Destroy an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			destroyed, err := cc.client.Delete(ctx, args[0], account)
			if err != nil {
				return err
			}
			if !destroyed {
				fmt.Printf("Email %s was not destroyed (already gone?)\n", args[0])
				return nil
			}
			fmt.Printf("Destroyed %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	return cmd
}
