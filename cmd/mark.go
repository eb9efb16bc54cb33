package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/jmap"
)

func newMarkCmd() *cobra.Command {
	var account string
	var seen, unseen, flag, unflag bool

	cmd := &cobra.Command{
		Use:   "mark <email-id>",
		Short: "Set or clear the seen/flagged keywords on an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keywords := map[string]bool{}
			if seen {
				keywords[jmap.KeywordSeen] = true
			}
			if unseen {
				keywords[jmap.KeywordSeen] = false
			}
			if flag {
				keywords[jmap.KeywordFlagged] = true
			}
			if unflag {
				keywords[jmap.KeywordFlagged] = false
			}
			if len(keywords) == 0 {
				return fmt.Errorf("nothing to do; pass --seen, --unseen, --flag or --unflag")
			}

			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			updated, err := cc.client.UpdateKeywords(ctx, args[0], keywords, account)
			if err != nil {
				return err
			}
			if !updated {
				fmt.Printf("No change for %s\n", args[0])
				return nil
			}
			fmt.Printf("Updated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	cmd.Flags().BoolVar(&seen, "seen", false, "Mark as read")
	cmd.Flags().BoolVar(&unseen, "unseen", false, "Mark as unread")
	cmd.Flags().BoolVar(&flag, "flag", false, "Flag (star) the email")
	cmd.Flags().BoolVar(&unflag, "unflag", false, "Remove the flag")
	cmd.MarkFlagsMutuallyExclusive("seen", "unseen")
	cmd.MarkFlagsMutuallyExclusive("flag", "unflag")
	return cmd
}
