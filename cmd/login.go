package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/config"
	"github.com/teemow/jmapctl/internal/instrumentation"
	"github.com/teemow/jmapctl/internal/oauth"
	"github.com/teemow/jmapctl/internal/token"
)

func newLoginCmd() *cobra.Command {
	var clientID string
	var scopes []string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate via the OAuth device flow and store the token",
		Long: `Discover the server's OAuth metadata, run the device authorization flow
and store the resulting token pair in the OS credential store.

You will be shown a code and a verification URL; open the URL on any
device, enter the code, and approve the login. The command waits until
the server confirms or the code expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if serverFlag != "" {
				cfg.Server = serverFlag
			}
			if identityFlag != "" {
				cfg.Identity = identityFlag
			}
			if clientID != "" {
				cfg.ClientID = clientID
			}
			if len(scopes) > 0 {
				cfg.Scopes = scopes
			}
			if cfg.Server == "" {
				return fmt.Errorf("--server is required")
			}
			if cfg.Identity == "" {
				return fmt.Errorf("--identity is required")
			}

			return runLogin(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id (default from config)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "OAuth scopes to request (default from config)")
	return cmd
}

func runLogin(ctx context.Context, cfg *config.Config) error {
	logger := newLogger()

	provider, err := instrumentation.NewProvider(ctx, cfg.Instrumentation(version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()
	metrics := provider.Metrics()

	discoverer := oauth.NewDiscoverer()
	discoverer.Logger = logger
	md, err := discoverer.Discover(ctx, cfg.Server)
	if err != nil {
		return err
	}
	if !md.SupportsDeviceGrant() {
		return fmt.Errorf("server %s does not support the device authorization grant", cfg.Server)
	}

	flow := oauth.NewFlow(md, cfg.ClientID)
	flow.Logger = logger
	flow.OnState = func(s oauth.FlowState) {
		logger.Debug("device flow state changed", "state", s.String())
	}
	flow.OnPoll = func(outcome string) {
		metrics.RecordDeviceFlowPoll(ctx, outcome)
	}

	grant, err := flow.RequestDeviceCode(ctx, cfg.Scopes)
	if err != nil {
		return err
	}

	fmt.Printf("To sign in, open:\n\n    %s\n\nand enter the code: %s\n\n", grant.VerificationURI, grant.UserCode)
	if grant.VerificationURIComplete != "" {
		fmt.Printf("Or open this link directly:\n\n    %s\n\n", grant.VerificationURIComplete)
	}
	fmt.Println("Waiting for approval...")

	tok, err := flow.PollToken(ctx, grant)
	if err != nil {
		return err
	}

	store := token.NewKeyringStore()
	stored := &token.StoredToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry(time.Now()),
		RefreshToken: tok.RefreshToken,
	}
	if err := store.Save(cfg.Server, cfg.Identity, stored); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	// Persist the server, identity and token endpoint so later commands
	// and refreshes skip rediscovery.
	cfg.TokenEndpoint = md.TokenEndpoint
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Logged in as %s at %s\n", cfg.Identity, cfg.Server)
	return nil
}
