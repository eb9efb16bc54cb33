package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/token"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored token pair for the configured identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := token.NewKeyringStore().Clear(cfg.Server, cfg.Identity); err != nil {
				return err
			}
			fmt.Printf("Logged out %s from %s\n", cfg.Identity, cfg.Server)
			return nil
		},
	}
}
