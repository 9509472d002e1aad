package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sioly123/Lazarus-Ground-Station/internal/config"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var (
		configPath  string
		listPorts   bool
		summaryPath string
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
	flag.BoolVar(&listPorts, "list-ports", false, "List serial ports and exit")
	flag.StringVar(&summaryPath, "summary", "", "Print a summary of a radio capture file and exit")
	flag.Parse()

	if listPorts {
		if err := printPorts(os.Stdout); err != nil {
			logger.Error("listing serial ports failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}
	if summaryPath != "" {
		if err := printCaptureSummary(os.Stdout, summaryPath); err != nil {
			logger.Error("capture summary failed", slog.String("path", summaryPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
			os.Exit(1)
		}
	}
	logLevel.Set(cfg.Log.SlogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("lazarus ground station starting")
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(err.Error())
		cancel()
		os.Exit(1)
	}
	logger.Info("lazarus ground station stopped")
}
