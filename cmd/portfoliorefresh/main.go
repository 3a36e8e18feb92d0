// Command portfoliorefresh runs one portfolio refresh and exits. It is
// scheduled independently of (and offset after) the symbol batch; the two
// processes coordinate only through persisted batch run rows.
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
	dateFlag := flag.String("date", "", "target date (YYYY-MM-DD), empty for the latest trading day")
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

	app := di.New(cfg, gormDB, rdb)

	result, err := app.Refresh.Run(context.Background(), target, "scheduler")
	if err != nil {
		slog.Error("portfolio refresh failed", "run_id", result.RunID, "status", result.Status, "error", err)
		os.Exit(1)
	}
	slog.Info("portfolio refresh finished",
		"run_id", result.RunID,
		"status", result.Status,
		"portfolios", result.SymbolsProcessed,
		"failed", result.SymbolsFailed)
	if result.SymbolsFailed > 0 {
		os.Exit(3)
	}
}
