package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ryadomlab/ryadom/internal/bot"
	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/config"
	"github.com/ryadomlab/ryadom/internal/health"
	"github.com/ryadomlab/ryadom/internal/memory"
	"github.com/ryadomlab/ryadom/internal/quota"
	"github.com/ryadomlab/ryadom/internal/sched"
	"github.com/ryadomlab/ryadom/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ryadom",
	Short: "ryadom - Telegram companion that listens and remembers",
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the bot (polling + scheduler + health endpoints)",
	RunE:  runBot,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ryadom status",
	RunE:  runStatus,
}

var debugFlag bool

func init() {
	botCmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(botCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if debugFlag {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("bot token not set. Run 'ryadom onboard' or set RYADOM_BOT_TOKEN")
	}
	if cfg.Claude.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'ryadom onboard' or set RYADOM_API_KEY / ANTHROPIC_API_KEY")
	}

	logger := newLogger()

	db, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	llm, err := claude.New(cfg.Claude, logger)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}
	defer llm.Close()

	channel, err := bot.NewChannel(cfg.Telegram, logger)
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	mgr := memory.NewManager(db, llm, logger)
	pipeline := bot.NewPipeline(
		db,
		mgr,
		llm,
		quota.NewChecker(db, cfg.Limits, logger),
		channel,
		bot.NewAdminNotifier(channel, cfg.Telegram.AdminChatIDs, logger),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channel.Start(ctx, pipeline); err != nil {
		return fmt.Errorf("start channel: %w", err)
	}
	defer channel.Stop()

	scheduler := sched.NewService(db, mgr, llm, channel, pipeline, cfg.Checkin, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	probes := health.NewServer(cfg.Health, db, logger)
	if err := probes.Start(); err != nil {
		return fmt.Errorf("start health server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = probes.Stop(shutdownCtx)
	}()

	logger.Info().Msg("ryadom is running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set the bot token and API key\n", cfgPath)
	fmt.Println("  2. Or set RYADOM_BOT_TOKEN and RYADOM_API_KEY environment variables")
	fmt.Println("  3. Run 'ryadom bot' to start")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Database: %s\n", cfg.DBPath())
	fmt.Printf("Model: %s (fast: %s)\n", cfg.Claude.Model, cfg.Claude.ModelFast)
	fmt.Printf("Bot token: %s\n", maskSecret(cfg.Telegram.Token))
	fmt.Printf("API key: %s\n", maskSecret(cfg.Claude.APIKey))
	fmt.Printf("Admin chats: %d\n", len(cfg.Telegram.AdminChatIDs))
	fmt.Printf("Check-ins: enabled=%v (after %d inactive days)\n",
		cfg.Checkin.Enabled, cfg.Checkin.MinInactiveDays)
	fmt.Printf("Health: enabled=%v (%s:%d)\n", cfg.Health.Enabled, cfg.Health.Host, cfg.Health.Port)

	if _, err := os.Stat(cfg.DBPath()); err != nil {
		fmt.Println("Database: not found (created on first run)")
	}
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "not set"
	}
	if len(s) <= 8 {
		return "set"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
