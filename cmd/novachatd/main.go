package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	novachat "github.com/novachat/novachat"
	"github.com/novachat/novachat/internal/config"
	"github.com/novachat/novachat/internal/journal"
	"github.com/novachat/novachat/internal/repository"
	"github.com/novachat/novachat/internal/server"
	"github.com/novachat/novachat/internal/service"
)

var (
	flagListen         string
	flagDatabaseURL    string
	flagBackendHost    string
	flagBackendPort    int
	flagBackendModel   string
	flagBackendTimeout time.Duration
	flagJournalPath    string
)

var rootCmd = &cobra.Command{
	Use:   "novachatd",
	Short: "Multi-user chat server brokering terminal clients to a local language model",
	Long: `novachatd authenticates users, keeps each user's conversation durably in
PostgreSQL, and forwards conversation context to an OpenAI-compatible
inference endpoint (such as LM Studio) one turn at a time.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides NOVACHAT_LISTEN_ADDR)")
	rootCmd.Flags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	rootCmd.Flags().StringVar(&flagBackendHost, "backend-host", "", "inference backend host (overrides NOVACHAT_BACKEND_HOST)")
	rootCmd.Flags().IntVar(&flagBackendPort, "backend-port", 0, "inference backend port (overrides NOVACHAT_BACKEND_PORT)")
	rootCmd.Flags().StringVar(&flagBackendModel, "backend-model", "", "model identifier sent with each request")
	rootCmd.Flags().DurationVar(&flagBackendTimeout, "backend-timeout", 0, "per-turn inference timeout")
	rootCmd.Flags().StringVar(&flagJournalPath, "journal", "", "append-only turn journal path (empty disables)")
}

func run(cmd *cobra.Command) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, cfg)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL (or --database-url) is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	migrationsFS, err := fs.Sub(novachat.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jnl.Close()
	}

	credentials := service.NewCredentialService(repository.NewUsers(pool), cfg.PasswordMinLen)
	conversations := service.NewConversationService(repository.NewConversations(pool))
	inference := service.NewInferenceService(cfg)

	var turnJournal service.TurnJournal
	if jnl != nil {
		turnJournal = jnl
	}
	broker := service.NewBroker(conversations, inference, turnJournal, cfg.HistoryWindow)

	if err := inference.Ping(ctx); err != nil {
		slog.Warn("inference backend is offline", "endpoint", cfg.BackendURL(), "error", err)
	} else {
		slog.Info("inference backend reachable", "endpoint", cfg.BackendURL(), "model", cfg.BackendModel)
	}

	srv := server.New(cfg.ListenAddr, credentials, broker, conversations)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	slog.Info("server shut down gracefully")
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = flagListen
	}
	if cmd.Flags().Changed("database-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if cmd.Flags().Changed("backend-host") {
		cfg.BackendHost = flagBackendHost
	}
	if cmd.Flags().Changed("backend-port") {
		cfg.BackendPort = flagBackendPort
	}
	if cmd.Flags().Changed("backend-model") {
		cfg.BackendModel = flagBackendModel
	}
	if cmd.Flags().Changed("backend-timeout") {
		cfg.BackendTimeout = flagBackendTimeout
	}
	if cmd.Flags().Changed("journal") {
		cfg.JournalPath = flagJournalPath
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
}
