package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/jmap"
)

func newListCmd() *cobra.Command {
	var (
		account  string
		mailbox  string
		search   string
		limit    int
		position int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Query emails in a mailbox or across the account",
		Long: `Query emails, newest first. With --mailbox the query is scoped to one
mailbox (by name or role, e.g. "inbox"); with --search the server's
full-text search is applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			opts := jmap.QueryOptions{
				AccountID:  account,
				SearchText: search,
				Limit:      limit,
				Position:   position,
			}
			if mailbox != "" {
				mb, err := cc.client.FindMailbox(ctx, account, mailbox)
				if err != nil {
					return err
				}
				if mb == nil {
					return fmt.Errorf("no mailbox named %q", mailbox)
				}
				opts.MailboxID = mb.ID
			}

			result, err := cc.client.QueryEmails(ctx, opts)
			if err != nil {
				return err
			}
			emails, err := cc.client.FetchEmails(ctx, result.IDs, account, nil)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT\tFLAGS")
			for i := range emails {
				e := &emails[i]
				from := ""
				if len(e.From) > 0 {
					from = e.From[0].String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.ReceivedAt.Format("2006-01-02 15:04"), from, e.Subject, emailFlags(e))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d of %d messages (position %d)\n", len(emails), result.Total, result.Position)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	cmd.Flags().StringVar(&mailbox, "mailbox", "", "Mailbox name or role to list (e.g. inbox)")
	cmd.Flags().StringVar(&search, "search", "", "Full-text search expression")
	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum number of messages")
	cmd.Flags().IntVar(&position, "position", 0, "Paging offset into the result set")
	return cmd
}

func emailFlags(e *jmap.Email) string {
	flags := ""
	if e.IsUnread() {
		flags += "N"
	}
	if e.IsStarred() {
		flags += "*"
	}
	if e.IsDraft() {
		flags += "D"
	}
	if e.HasAttachments() {
		flags += "A"
	}
	return flags
}
