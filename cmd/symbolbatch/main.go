// Command symbolbatch runs one universe-wide symbol batch and exits. It is
// the entrypoint for the externally scheduled nightly job; the portfolio
// refresh process discovers its completion through the batch run table.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"risk_backend/internal/app/di"
	"risk_backend/internal/platform/config"
	"risk_backend/internal/platform/db"
)

func main() {
	var (
		dateFlag     = flag.String("date", "", "target date (YYYY-MM-DD), empty for the latest trading day")
		backfillFlag = flag.Bool("backfill", true, "process every missed trading day since the last success")
	)
	flag.Parse()

	var target time.Time
	if *dateFlag != "" {
		var err error
		target, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			slog.Error("invalid -date, want YYYY-MM-DD", "value", *dateFlag)
			os.Exit(2)
		}
	}

	cfg, err := config.Load(os.Getenv("RISK_CONFIG_DIR"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	gormDB, err := db.Open(cfg.DB.DSN, cfg.DB.RunMigration)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	rdb := di.NewRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	ctx := context.Background()
	app := di.New(cfg, gormDB, rdb)
	if err := app.Universe.EnsureSeeded(ctx, cfg.Batch.Benchmarks); err != nil {
		slog.Error("benchmark seeding failed", "error", err)
		os.Exit(1)
	}

	result, err := app.Batch.Run(ctx, target, *backfillFlag, "scheduler")
	if err != nil {
		slog.Error("symbol batch failed", "run_id", result.RunID, "status", result.Status, "error", err)
		os.Exit(1)
	}
	slog.Info("symbol batch finished",
		"run_id", result.RunID,
		"status", result.Status,
		"dates", result.DatesProcessed,
		"symbols", result.SymbolsProcessed,
		"failed", result.SymbolsFailed)
	if result.SymbolsFailed > 0 {
		os.Exit(3)
	}
}
