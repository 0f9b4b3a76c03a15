// Command sync runs one synchronization against the configured stores and
// prints the resulting indicators. Settings come from config.yaml (or
// CONFIG_PATH) and the environment; a local .env file is loaded first when
// present.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lead-dashboard/internal/app"
	"lead-dashboard/internal/config"
	"lead-dashboard/internal/usecase"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
	period := flag.String("period", "all", "period used for the indicator summary")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}

	p, err := usecase.ParsePeriod(*period)
	if err != nil {
		slog.Error("invalid period", "period", *period)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build services", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	res, err := a.Sync.Sync(ctx)
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) {
			slog.Error("sync failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			slog.Error("sync failed", "err", err)
		}
		a.Close()
		os.Exit(1)
	}

	loc, _ := cfg.Location()
	rows := usecase.Filter(res.Rows, p, time.Now().In(loc))
	kpis := usecase.ComputeKPIs(rows)
	slog.Info("sync finished",
		"run_id", res.Run.ID,
		"rows", res.Run.Rows,
		"reanalyzed", res.Run.Reanalyzed,
		"carried", res.Run.Carried,
		"failed", res.Run.Failed,
		"duration", res.Run.FinishedAt.Sub(res.Run.StartedAt),
		"report", cfg.Report.Path,
	)
	slog.Info("indicators",
		"period", p,
		"total", kpis.Total,
		"mean_user_messages", kpis.MeanUserMessages,
		"satisfaction_rate", kpis.SatisfactionRate,
	)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
