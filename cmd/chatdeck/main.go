// Package main provides the chatdeck CLI entry point.
// chatdeck is a terminal chat client for the Cohere chat API that keeps a local history of conversations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatdeck/internal/cohere"
	"chatdeck/internal/config"
	"chatdeck/internal/data/embedded"
	"chatdeck/internal/logger"
	"chatdeck/internal/session"
	"chatdeck/internal/shell"
	"chatdeck/internal/sidebar"
	"chatdeck/internal/storage"
	"chatdeck/internal/testutils"
	"chatdeck/internal/transcript"
	"chatdeck/internal/version"
)

const markdownWidth = 80

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree over a fresh viper instance.
func newRootCmd() *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:   "chatdeck",
		Short: "chatdeck - terminal chat client with local history",
		Long: `chatdeck talks to the Cohere chat API and keeps every conversation on disk,
grouped by age so earlier chats are easy to find again.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.Context(), v)
		},
	}

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive chat shell",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.Context(), v)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the chat history grouped by age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(v, cmd.OutOrStdout())
		},
	}

	var detailed bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			if detailed {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
		},
	}
	versionCmd.Flags().BoolVar(&detailed, "detailed", false, "Show build details")

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyLogLevel, "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String(config.KeyLogFile, "", "Write logs to file instead of stderr")
	flags.Bool(config.KeyTestMode, false, "Run in deterministic test mode")
	flags.String(config.KeyStore, "", "Storage backend (file|sqlite|memory) [default: file]")
	flags.String(config.KeyDataDir, "", "Directory for chats and settings [default: user config dir]")
	for _, key := range []string{config.KeyLogLevel, config.KeyLogFile, config.KeyTestMode, config.KeyStore, config.KeyDataDir} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", key, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(shellCmd, historyCmd, versionCmd)
	return rootCmd
}

// runtime is everything a chat session needs, built from the resolved configuration.
type runtime struct {
	cfg *config.Config
	kv  storage.KV
	app *shell.App
}

func (r *runtime) Close() {
	if err := r.kv.Close(); err != nil {
		logger.Warn("Failed to close storage", "error", err)
	}
}

// setup resolves the configuration and wires storage, the API client and the shell app.
func setup(v *viper.Viper) (*runtime, error) {
	cfg, err := config.LoadDefault(v)
	if err != nil {
		return nil, err
	}

	if err := logger.Configure(cfg.LogLevel, cfg.LogFile, cfg.TestMode); err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	sidebar.ConfigureColorProfile(cfg.TestMode)

	kv := storage.OpenOrMemory(cfg.Store, cfg.DataDir)
	clock := testutils.NewClock(cfg.TestMode)
	store := session.Open(storage.NewSessionRepository(kv),
		session.WithClock(clock),
		session.WithIDGenerator(testutils.NewIDGenerator(cfg.TestMode)))

	persona, err := embedded.DefaultPersona()
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	settings := storage.NewSettingsRepository(kv, persona, cfg.APIKey)

	client := cohere.NewClient(cfg.APIURL, cfg.HTTPTimeout)
	controller := transcript.NewController(store, client, settings, transcript.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	})

	theme := sidebar.LoadTheme("default")
	markdown, err := shell.NewMarkdownRenderer(markdownWidth, cfg.TestMode || !sidebar.ColorEnabled())
	if err != nil {
		logger.Warn("Markdown rendering disabled", "error", err)
	}

	deps := shell.Deps{
		Store:        store,
		Controller:   controller,
		Settings:     settings,
		Theme:        theme,
		Markdown:     markdown,
		SidebarWidth: cfg.SidebarWidth,
		Now:          clock,
	}
	if !cfg.TestMode {
		deps.Indicator = shell.NewTypingIndicator(os.Stdout, theme.Muted)
	}

	logger.Debug("Runtime ready", "store", cfg.Store, "data_dir", cfg.DataDir, "model", cfg.Model, "api_url", client.URL())
	return &runtime{cfg: cfg, kv: kv, app: shell.NewApp(deps)}, nil
}

func runShell(ctx context.Context, v *viper.Viper) error {
	rt, err := setup(v)
	if err != nil {
		return err
	}
	defer rt.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting chatdeck", "version", version.Version)
	return shell.Run(ctx, rt.app, rt.cfg.DataDir)
}

func runHistory(v *viper.Viper, w io.Writer) error {
	rt, err := setup(v)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.app.History(w)
	return nil
}
