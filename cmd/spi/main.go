// Package main is the entrypoint for the spi service.
package main

import (
	"log/slog"
	"os"

	"github.com/solarperformanceinsight/spi/internal/cli"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := cli.BuildCLI().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
