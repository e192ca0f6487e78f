// amebot runs verification batches against the member enrollment form,
// driven either by the Telegram transport (run) or a local file (batch).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/code-enforcerr/MyMutualAME/internal/batch"
	"github.com/code-enforcerr/MyMutualAME/internal/bot"
	"github.com/code-enforcerr/MyMutualAME/internal/browser"
	"github.com/code-enforcerr/MyMutualAME/internal/config"
	"github.com/code-enforcerr/MyMutualAME/internal/intake"
	"github.com/code-enforcerr/MyMutualAME/internal/scheduler"
	"github.com/code-enforcerr/MyMutualAME/internal/storage"
	"github.com/code-enforcerr/MyMutualAME/internal/verify"

	"github.com/google/uuid"
)

var (
	cfgPath string
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "amebot",
	Short: "Batch identity verification over the enrollment form",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and serve batch requests from the chat transport",
	RunE:  runBot,
}

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Run one batch from a local file and write the summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocalBatch,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "amebot.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(runCmd, batchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allow := config.NewAllowList(cfg.Bot.AllowedUsers)
	if cfg.Bot.AllowListFile != "" {
		if err := allow.Watch(ctx, cfg.Bot.AllowListFile, logger); err != nil {
			return fmt.Errorf("allow-list watch: %w", err)
		}
	}

	mgr := browser.NewManager(cfg.Browser, logger.Named("browser"))
	defer func() { _ = mgr.Shutdown() }()

	var history *storage.History
	if cfg.Output.HistoryPath != "" {
		if history, err = storage.OpenHistory(cfg.Output.HistoryPath); err != nil {
			return err
		}
		defer history.Close()
	}

	exec := verify.NewExecutor(mgr.Factory(), cfg.Output.Root, logger.Named("verify"))
	pool := scheduler.New(cfg.Batch.SchedulerParams(), exec, logger.Named("scheduler"))
	client := bot.NewTelegramClient(cfg.Bot.Token)
	service := bot.NewService(bot.Options{
		MaxRecords: cfg.Batch.MaxRecords,
		OutputRoot: cfg.Output.Root,
		Params:     cfg.Batch.SchedulerParams(),
	}, allow, pool, client, history, logger.Named("bot"))

	logger.Info("amebot started",
		zap.Int("concurrency", cfg.Batch.Concurrency),
		zap.Int("max_records", cfg.Batch.MaxRecords))

	err = bot.NewLoop(client, service, history, logger.Named("loop")).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runLocalBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Browser.TargetURL == "" {
		return fmt.Errorf("target URL is required (AMEBOT_TARGET_URL or browser.target_url)")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcomes := intake.ParseBatch(string(data))
	var records []intake.Record
	for _, out := range outcomes {
		if out.Valid() {
			records = append(records, *out.Record)
		}
	}
	if len(records) == 0 {
		return fmt.Errorf("no valid records in %s", args[0])
	}
	if cfg.Batch.MaxRecords > 0 && len(records) > cfg.Batch.MaxRecords {
		return fmt.Errorf("%d valid records exceeds the %d per-batch maximum; split the file", len(records), cfg.Batch.MaxRecords)
	}

	mgr := browser.NewManager(cfg.Browser, logger.Named("browser"))
	defer func() { _ = mgr.Shutdown() }()

	exec := verify.NewExecutor(mgr.Factory(), cfg.Output.Root, logger.Named("verify"))
	pool := scheduler.New(cfg.Batch.SchedulerParams(), exec, logger.Named("scheduler"))

	results := pool.Run(ctx, records, func(res scheduler.Result, done, total int) {
		fmt.Printf("[%d/%d] record %d: %s\n", done, total, res.Index, res.Status)
	})

	summary := batch.Aggregate(uuid.NewString(), cfg.Batch.SchedulerParams(), outcomes, results)
	dir, err := storage.Workspace(cfg.Output.Root, summary.BatchID)
	if err != nil {
		return err
	}
	for _, err := range storage.CollectArtifacts(dir, summary.Results) {
		logger.Warn("artifact move failed", zap.Error(err))
	}
	path, err := storage.WriteSummary(dir, summary)
	if err != nil {
		return err
	}

	fmt.Printf("matched %d  mismatched %d  indeterminate %d  failed %d\n",
		summary.Counts.Matched, summary.Counts.Mismatched, summary.Counts.Indeterminate, summary.Counts.Failed)
	fmt.Println("summary:", path)
	return nil
}
