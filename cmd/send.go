package cmd

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/jmap"
)

func newSendCmd() *cobra.Command {
	var (
		account     string
		from        string
		to          []string
		cc          []string
		subject     string
		bodyFile    string
		htmlFile    string
		attachments []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Compose and submit an email",
		Long: `Compose an RFC 5322 message and submit it for delivery. The plain-text
body is read from --body-file, or from stdin when the flag is omitted.
A copy lands in the sent mailbox.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(to) == 0 {
				return fmt.Errorf("--to is required")
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			textBody, err := readBody(bodyFile)
			if err != nil {
				return err
			}
			htmlBody := ""
			if htmlFile != "" {
				data, err := os.ReadFile(htmlFile)
				if err != nil {
					return fmt.Errorf("reading HTML body: %w", err)
				}
				htmlBody = string(data)
			}

			msg := jmap.OutgoingEmail{
				To:        parseAddresses(to),
				CC:        parseAddresses(cc),
				Subject:   subject,
				TextBody:  textBody,
				HTMLBody:  htmlBody,
				AccountID: account,
			}
			if from != "" {
				msg.From = &jmap.EmailAddress{Email: from}
			}
			for _, path := range attachments {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading attachment %s: %w", path, err)
				}
				name := filepath.Base(path)
				msg.Attachments = append(msg.Attachments, jmap.Attachment{
					Filename:    name,
					ContentType: mime.TypeByExtension(filepath.Ext(name)),
					Data:        data,
				})
			}

			ctx := cmd.Context()
			clientCtx, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer clientCtx.shutdown(ctx)

			submissionID, err := clientCtx.client.SendEmail(ctx, msg)
			if err != nil {
				return err
			}
			fmt.Printf("Submitted; track delivery with: jmapctl status %s\n", submissionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	cmd.Flags().StringVar(&from, "from", "", "Sending address (must match a server-side identity)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipient address (repeatable)")
	cmd.Flags().StringSliceVar(&cc, "cc", nil, "Cc address (repeatable)")
	cmd.Flags().StringVar(&subject, "subject", "", "Message subject")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Plain-text body file (default: stdin)")
	cmd.Flags().StringVar(&htmlFile, "html-file", "", "HTML body file")
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "File to attach (repeatable)")
	return cmd
}

func readBody(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading body from stdin: %w", err)
	}
	return string(data), nil
}

func parseAddresses(raw []string) []jmap.EmailAddress {
	var out []jmap.EmailAddress
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, jmap.EmailAddress{Email: r})
	}
	return out
}
