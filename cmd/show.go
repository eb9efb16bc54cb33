package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/jmap"
)

func newShowCmd() *cobra.Command {
	var account string
	var html bool

	cmd := &cobra.Command{
		Use:   "show <email-id>",
		Short: "Display one email with its body and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			emails, err := cc.client.FetchEmails(ctx, []string{args[0]}, account, nil)
			if err != nil {
				return err
			}
			if len(emails) == 0 {
				return fmt.Errorf("no email with id %s", args[0])
			}
			e := &emails[0]

			fmt.Printf("From:    %s\n", joinAddresses(e.From))
			fmt.Printf("To:      %s\n", joinAddresses(e.To))
			if len(e.CC) > 0 {
				fmt.Printf("Cc:      %s\n", joinAddresses(e.CC))
			}
			fmt.Printf("Date:    %s\n", e.ReceivedAt.Format("Mon, 2 Jan 2006 15:04:05 -0700"))
			fmt.Printf("Subject: %s\n\n", e.Subject)

			body := e.TextContent()
			if html || body == "" {
				if h := e.HTMLContent(); h != "" {
					body = h
				}
			}
			fmt.Println(body)

			if atts := e.Attachments(); len(atts) > 0 {
				fmt.Printf("\nAttachments:\n")
				for _, a := range atts {
					fmt.Printf("  %s  %s  %d bytes  (blob %s)\n", a.Name, a.Type, a.Size, a.BlobID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	cmd.Flags().BoolVar(&html, "html", false, "Prefer the HTML body over plain text")
	return cmd
}

func joinAddresses(addrs []jmap.EmailAddress) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
