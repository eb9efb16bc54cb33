package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	var account string
	var output string

	cmd := &cobra.Command{
		Use:   "download <blob-id> [name]",
		Short: "Save an attachment blob to disk",
		Long: `Download a blob by id, as listed by 'jmapctl show'. The optional name
argument is sent to the server for content-disposition and used as the
default output filename.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "blob"
			if len(args) == 2 {
				name = args[1]
			}
			path := output
			if path == "" {
				path = filepath.Base(name)
			}

			ctx := cmd.Context()
			cc, err := newClientContext(ctx)
			if err != nil {
				return err
			}
			defer cc.shutdown(ctx)

			data, err := cc.client.DownloadBlob(ctx, args[0], name, account)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "JMAP account id (default: primary mail account)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: the blob name)")
	return cmd
}
