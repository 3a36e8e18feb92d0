package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"risk_backend/internal/app/di"
	"risk_backend/internal/app/router"
	"risk_backend/internal/platform/config"
	"risk_backend/internal/platform/db"
	jwtmw "risk_backend/internal/platform/jwt"
	"risk_backend/internal/platform/scheduler"
)

func main() {
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
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close redis client", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := di.New(cfg, gormDB, rdb)
	app.Bootstrap(ctx)

	if cfg.Cron.Enabled {
		sched := scheduler.New(ctx)
		if _, err := sched.Add(cfg.Cron.SymbolBatch, "symbol_batch", func(jobCtx context.Context) {
			if _, err := app.Batch.Run(jobCtx, time.Time{}, true, "cron"); err != nil {
				slog.Error("scheduled symbol batch failed", "error", err)
			}
		}); err != nil {
			slog.Error("failed to schedule symbol batch", "error", err)
			os.Exit(1)
		}
		if _, err := sched.Add(cfg.Cron.PortfolioRefresh, "portfolio_refresh", func(jobCtx context.Context) {
			if _, err := app.Refresh.Run(jobCtx, time.Time{}, "cron"); err != nil {
				slog.Error("scheduled portfolio refresh failed", "error", err)
			}
		}); err != nil {
			slog.Error("failed to schedule portfolio refresh", "error", err)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
	}

	if os.Getenv(jwtmw.EnvKeyJWTSecret) == "" {
		slog.Warn("JWT_SECRET is not set, admin routes will reject all requests")
	}

	r := router.NewRouter(app.Admin)
	if err := r.Run(cfg.Server.Addr); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
