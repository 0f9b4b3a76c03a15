package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"lead-dashboard/handler"
	"lead-dashboard/internal/app"
	"lead-dashboard/internal/config"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), nil)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build services", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(a.Sync, a.View, a.Settings)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
