package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMailboxesCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "mailboxes",
		Short: "List the account's mailboxes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			mailboxes, err := cc.client.ListMailboxes(ctx, account)
			if err != nil {
				return err
			}
			sort.Slice(mailboxes, func(i, j int) bool {
				if mailboxes[i].SortOrder != mailboxes[j].SortOrder {
					return mailboxes[i].SortOrder < mailboxes[j].SortOrder
				}
				return mailboxes[i].Name < mailboxes[j].Name
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tUNREAD\tTOTAL")
			for _, mb := range mailboxes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
					mb.ID, mb.Name, mb.Role, mb.UnreadEmails, mb.TotalEmails)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	return cmd
}
