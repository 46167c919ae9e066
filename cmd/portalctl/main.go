package main

import (
	"context"
	"log/slog"
	"os"

	"go-portal-client/internal/app"
	"go-portal-client/internal/logger"
)

func main() {
	// Initialize custom logger with colors
	logHandler := logger.NewPrettyHandler(os.Stderr, &slog.HandlerOptions{
		Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")),
	})
	log := slog.New(logHandler)
	slog.SetDefault(log)

	application, err := app.New(log)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
