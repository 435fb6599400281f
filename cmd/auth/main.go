package main

import (
	"log/slog"
	"os"

	"github.com/aussiebroadwan/shopauth/internal/auth/app"
)

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg)

	application, err := app.New(cfg)
	if err != nil {
		logger.Error("failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		logger.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
