package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockwatch/internal/cli"
	"stockwatch/internal/config"
	"stockwatch/internal/logging"
	"stockwatch/internal/trace"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("STOCKWATCH_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logger := logging.NewLoggerWithConfig(logCfg)

	if err := trace.Init(trace.Config{Enabled: cfg.Tracing.Enabled, ServiceVersion: cli.Version}); err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = cli.NewRootCmd(cfg, logger).ExecuteContext(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if shutdownErr := trace.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Debug().Err(shutdownErr).Msg("Trace shutdown failed")
	}
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
