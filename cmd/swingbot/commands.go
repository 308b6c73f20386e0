package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/swingbot/internal/app"
	"github.com/alanyoungcy/swingbot/internal/backtest"
	"github.com/alanyoungcy/swingbot/internal/config"
	"github.com/alanyoungcy/swingbot/internal/crypto"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot in the configured mode (live, server or once)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}
			logger.Info("swingbot starting",
				slog.String("mode", cfg.Mode),
				slog.String("config", configPath),
			)

			application := app.New(cfg, logger)
			defer application.Close()

			if err := shutdownErr(logger, application.Run(cmd.Context())); err != nil {
				logger.Error("application exited with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("swingbot stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "", "override the configured mode (live, server, once)")
	return cmd
}

func scanCmd() *cobra.Command {
	var symbols []string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the universe once and print ranked signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			for _, s := range symbols {
				if !config.ValidSymbol(s) {
					return fmt.Errorf("invalid symbol %q", s)
				}
			}

			application := app.New(cfg, logger)
			defer application.Close()

			rep, err := application.Scan(cmd.Context(), symbols)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "SYMBOL\tSCORE\tPRICE\tSTOP\tT1\tT2\tDEM\tADX\tRVOL\n")
			for _, sig := range rep.Signals {
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f\t%.2f\n",
					sig.Symbol, sig.Confidence, sig.Price, sig.StopPrice, sig.Target1Price, sig.Target2Price,
					sig.DeMarker, sig.ADX, sig.RelativeVolume)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Printf("\nscanned %d, failed %d, signals %d\n", rep.Scanned, rep.Failed, len(rep.Signals))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to scan (default: the configured universe)")
	return cmd
}

func backtestCmd() *cobra.Command {
	var (
		start, end string
		symbols    []string
		cash       float64
		out        string
		archive    bool
		riskGate   bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the strategy over historical daily bars",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			if start == "" {
				start = cfg.Backtest.Start
			}
			if end == "" {
				end = cfg.Backtest.End
			}
			from, err := parseDate("start", start)
			if err != nil {
				return err
			}
			to, err := parseDate("end", end)
			if err != nil {
				return err
			}

			application := app.New(cfg, logger)
			defer application.Close()

			run, err := application.Backtest(cmd.Context(), app.BacktestOptions{
				Start:        from,
				End:          to,
				Symbols:      symbols,
				StartingCash: cash,
				Archive:      archive || cfg.Backtest.Archive,
				RiskGate:     riskGate || cfg.Backtest.RiskGate,
			})
			if err != nil {
				return err
			}
			if err := backtest.Render(os.Stdout, run.Result); err != nil {
				return err
			}
			if run.ArchivePath != "" {
				fmt.Printf("report archived to %s (run %s)\n", run.ArchivePath, run.RunID)
			}
			if out != "" {
				data, err := json.MarshalIndent(run.Result, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Printf("report written to %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first replay day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last replay day, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to replay (default: the configured universe)")
	cmd.Flags().Float64Var(&cash, "cash", 0, "starting cash (default: backtest.starting_cash)")
	cmd.Flags().StringVar(&out, "out", "", "also write the JSON report to this file")
	cmd.Flags().BoolVar(&archive, "archive", false, "upload the report to S3")
	cmd.Flags().BoolVar(&riskGate, "risk-gate", false, "apply the drawdown and daily-loss breaker to replay buys")
	return cmd
}

func reportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List archived backtest reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			application := app.New(cfg, logger)
			defer application.Close()

			infos, err := application.ListReports(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "PATH\tSIZE\tMODIFIED\n")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Path, info.Size, info.LastModified.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func encryptSecretCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "encrypt-secret",
		Short: "Encrypt the broker secret into a file for encrypted_secret_path",
		Long: `Reads the broker secret from SWINGBOT_BROKER_API_SECRET and the password
from SWINGBOT_BROKER_SECRET_PASSWORD, prompting on stdin for whichever is unset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(os.Stdin)
			secret, err := envOrPrompt(in, "SWINGBOT_BROKER_API_SECRET", "broker secret: ")
			if err != nil {
				return err
			}
			password, err := envOrPrompt(in, "SWINGBOT_BROKER_SECRET_PASSWORD", "password: ")
			if err != nil {
				return err
			}
			blob, err := crypto.EncryptSecret(secret, password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, blob, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(os.Stderr, "encrypted secret written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "broker_secret.enc", "output file")
	return cmd
}

func envOrPrompt(in *bufio.Reader, key, prompt string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	v := strings.TrimSpace(line)
	if v == "" {
		return "", errors.New(strings.TrimSuffix(prompt, ": ") + " must not be empty")
	}
	return v, nil
}

func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("--%s is required (or set backtest.%s)", name, name)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}
