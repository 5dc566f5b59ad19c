package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/graph/checkpoint/factory"
	"github.com/BaSui01/agentgraph/internal/telemetry"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting graphctl",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	backend, err := factory.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := NewServer(cfg, logger, providers, backend)
	if err != nil {
		_ = backend.Close(context.Background())
		return err
	}
	if err := srv.Start(); err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			watcher.OnReload(func(next *config.Config) {
				applyLogLevel(level, next, logger)
			})
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("config watcher disabled", zap.Error(err))
			}
			defer watcher.Stop()
		}
	}

	waitErr := srv.Wait(ctx)
	shutdownErr := srv.Shutdown(context.WithoutCancel(ctx))
	logger.Info("graphctl stopped")
	if waitErr != nil {
		return fmt.Errorf("server: %w", waitErr)
	}
	return shutdownErr
}

// applyLogLevel 只热更新日志级别，其他字段需要重启生效
func applyLogLevel(level zap.AtomicLevel, next *config.Config, logger *zap.Logger) {
	want := parseLevel(next.Log.Level)
	if level.Level() == want {
		return
	}
	logger.Info("log level changed",
		zap.String("from", level.Level().String()),
		zap.String("to", want.String()),
	)
	level.SetLevel(want)
}
