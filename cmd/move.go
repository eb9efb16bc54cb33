package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMoveCmd() *cobra.Command {
	var account string
	var from string

	cmd := &cobra.Command{
		Use:   "move <email-id> <mailbox>",
		Short: "Move an email to another mailbox",
		Long: `Move an email into the named mailbox (by name or role, e.g. "archive").
With --from the email is removed from that mailbox; without it the email
keeps its other mailbox memberships.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			dest, err := cc.client.FindMailbox(ctx, account, args[1])
			if err != nil {
				return err
			}
			if dest == nil {
				return fmt.Errorf("no mailbox named %q", args[1])
			}

			fromID := ""
			if from != "" {
				src, err := cc.client.FindMailbox(ctx, account, from)
				if err != nil {
					return err
				}
				if src == nil {
					return fmt.Errorf("no mailbox named %q", from)
				}
				fromID = src.ID
			}

			moved, err := cc.client.Move(ctx, args[0], fromID, dest.ID, account)
			if err != nil {
				return err
			}
			if !moved {
				fmt.Printf("No change for %s\n", args[0])
				return nil
			}
			fmt.Printf("Moved %s to %s\n", args[0], dest.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	cmd.Flags().StringVar(&from, "from", "", "Mailbox to remove the email from (name or role)")
	return cmd
}
