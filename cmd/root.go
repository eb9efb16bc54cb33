package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/jmapctl/internal/config"
	"github.com/teemow/jmapctl/internal/instrumentation"
	"github.com/teemow/jmapctl/internal/jmap"
	"github.com/teemow/jmapctl/internal/token"
)

var (
	configPath   string
	serverFlag   string
	identityFlag string
	debugMode    bool
)

// rootCmd represents the base command for jmapctl
var rootCmd = &cobra.Command{
	Use:   "jmapctl",
	Short: "A JMAP mail client with OAuth device-flow login",
	Long: `jmapctl talks to JMAP mail servers (RFC 8620/8621): browse mailboxes,
search and read mail, flag, move and delete messages, download attachments
and send mail.

Authentication uses the OAuth 2.0 device authorization grant; tokens are
stored in the operating system credential store and refreshed silently.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "jmapctl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Mail server origin, e.g. https://mail.example.com (overrides config)")
	rootCmd.PersistentFlags().StringVar(&identityFlag, "identity", "", "Login identity, usually the mail address (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newMailboxesCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newMarkCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newIdentitiesCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// newLogger builds the process logger honoring --debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serverFlag != "" {
		cfg.Server = serverFlag
	}
	if identityFlag != "" {
		cfg.Identity = identityFlag
	}
	if cfg.Server == "" {
		return nil, fmt.Errorf("no server configured; run 'jmapctl login --server https://... --identity you@example.com' first")
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("no identity configured; pass --identity or run 'jmapctl login'")
	}
	return cfg, nil
}

// clientContext bundles everything a mail command needs.
type clientContext struct {
	cfg      *config.Config
	client   *jmap.Client
	provider *instrumentation.Provider
	logger   *slog.Logger
}

// newClientContext wires config, telemetry, token store and JMAP client.
func newClientContext(ctx context.Context) (*clientContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	provider, err := instrumentation.NewProvider(ctx, cfg.Instrumentation(version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	go func() {
		if err := provider.ServeMetrics(ctx); err != nil {
			logger.Warn("metrics listener failed", slog.Any("error", err))
		}
	}()

	clientCfg := jmap.Config{
		Server:        cfg.Server,
		Identity:      cfg.Identity,
		ClientID:      cfg.ClientID,
		TokenEndpoint: cfg.TokenEndpoint,
		Store:         token.NewKeyringStore(),
		Logger:        logger,
		Metrics:       provider.Metrics(),
		Tracer:        provider.Tracer("jmapctl"),
	}
	if cfg.AuthMode == "basic" {
		clientCfg.AuthScheme = jmap.AuthBasic
		clientCfg.Password = os.Getenv("JMAPCTL_PASSWORD")
		if clientCfg.Password == "" {
			return nil, fmt.Errorf("auth_mode is basic but JMAPCTL_PASSWORD is not set")
		}
	}

	return &clientContext{
		cfg:      cfg,
		client:   jmap.NewClient(clientCfg),
		provider: provider,
		logger:   logger,
	}, nil
}

func (c *clientContext) shutdown(ctx context.Context) {
	if err := c.provider.Shutdown(ctx); err != nil {
		c.logger.Warn("telemetry shutdown failed", slog.Any("error", err))
	}
}
