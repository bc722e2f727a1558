package main

import (
	"log/slog"
	"os"

	"github.com/thermoctl/go-mecom-server/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "mecom-server")
	logging.Set(l)
	return l
}
