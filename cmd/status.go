package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newIdentitiesCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "identities",
		Short: "List the account's sending identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			identities, err := cc.client.GetIdentities(ctx, account)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL")
			for _, id := range identities {
				fmt.Fprintf(w, "%s\t%s\t%s\n", id.ID, id.Name, id.Email)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "status <submission-id>",
		Short: "Show the delivery state of an earlier submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			status, err := cc.client.GetSubmissionStatus(ctx, args[0], account)
			if err != nil {
				return err
			}

			fmt.Printf("Submission: %s\n", status.ID)
			if status.EmailID != "" {
				fmt.Printf("Email:      %s\n", status.EmailID)
			}
			switch {
			case status.Delivered != nil && *status.Delivered:
				fmt.Println("State:      delivered")
			case status.Failed != nil && *status.Failed:
				fmt.Println("State:      failed")
			default:
				fmt.Println("State:      pending")
			}
			if status.StatusText != "" {
				fmt.Printf("Detail:     %s\n", status.StatusText)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	return cmd
}
