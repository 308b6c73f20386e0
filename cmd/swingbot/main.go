// Command swingbot is the entry point of the swing trading bot. It loads and
// validates configuration, sets up signal handling and runs the selected
// subcommand: the trading loop, a one-off scan, a backtest replay or the
// secret encryption helper.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/swingbot/internal/config"
)

var (
	configPath string
	modeFlag   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "swingbot",
		Short:         "Daily swing trading decision engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(backtestCmd())
	rootCmd.AddCommand(reportsCmd())
	rootCmd.AddCommand(encryptSecretCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the JSON logger at the named level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig loads and validates the configuration and returns a logger
// writing to w at the configured level.
func loadConfig(w io.Writer) (*config.Config, *slog.Logger, error) {
	boot := newLogger(w, "info")

	cfg, err := config.Load(configPath)
	if err != nil {
		boot.Error("failed to load config",
			slog.String("path", configPath),
			slog.String("error", err.Error()),
		)
		return nil, nil, err
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}

	logger := newLogger(w, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, nil, err
	}
	redacted := config.RedactedConfig(cfg)
	logger.Debug("configuration loaded",
		slog.String("config", configPath),
		slog.Any("settings", redacted.Trading),
		slog.String("postgres", redacted.Postgres.Host),
		slog.String("redis", redacted.Redis.Addr),
		slog.Bool("s3", redacted.S3.Enabled),
		slog.Bool("clickhouse", redacted.ClickHouse.Enabled),
	)
	return cfg, logger, nil
}

// shutdownErr treats a cancelled context as a clean stop.
func shutdownErr(logger *slog.Logger, err error) error {
	if errors.Is(err, context.Canceled) {
		logger.Info("application shut down gracefully")
		return nil
	}
	return err
}
