package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
	"github.com/omeyang/xsingle/pkg/observability/xlog"
)

// cliEnv 子命令共享的运行环境，在第一个动作执行前按需初始化。
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer

	logger     xlog.LoggerWithLevel
	logCleanup func() error
	backend    xsingle.Backend
	guard      *xsingle.Guard
}

// action 包装子命令动作：先加载配置、打开后端，再执行 fn。
func (e *cliEnv) action(fn cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := e.open(ctx, cmd); err != nil {
			return err
		}
		return fn(ctx, cmd)
	}
}

// open 按 配置文件 → 命令行 的顺序合并配置，构建日志、后端与守卫。
func (e *cliEnv) open(ctx context.Context, cmd *cli.Command) error {
	cfg := &xsingle.Config{}
	if path := cmd.String("config"); path != "" {
		loaded, err := xsingle.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if uri := cmd.String("backend"); uri != "" {
		cfg.Backend = uri
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cfg.Backend == "" {
		return usagef("no backend configured: use --backend, XSINGLE_BACKEND or the config file")
	}

	builder := xlog.New().
		SetOutput(e.stderr).
		SetLevelString(cfg.Log.Level).
		SetFormat(cfg.Log.Format).
		SetAttrs(slog.String("component", "xsinglectl"))
	if cfg.Log.File != "" {
		builder = builder.SetRotation(cfg.Log.File)
	}
	logger, cleanup, err := builder.Build()
	if err != nil {
		return &usageError{err: err}
	}
	e.logger, e.logCleanup = logger, cleanup

	backend, err := xsingle.Open(ctx, cfg.Backend, append(cfg.OpenOptions(), xsingle.WithBackendLogger(logger))...)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	e.backend = backend

	guard, err := xsingle.NewGuard(backend, append(cfg.GuardOptions(), xsingle.WithLogger(logger))...)
	if err != nil {
		return err
	}
	e.guard = guard

	scheme, _, _ := strings.Cut(cfg.Backend, "://")
	logger.Debug(ctx, "backend opened", xlog.Backend(scheme))
	return nil
}

// close 释放后端与日志资源，可重复调用。
func (e *cliEnv) close() {
	if e.backend != nil {
		if err := xsingle.Close(e.backend); err != nil && e.logger != nil {
			e.logger.Warn(context.Background(), "failed to close backend", xlog.Err(err))
		}
		e.backend = nil
	}
	if e.logCleanup != nil {
		_ = e.logCleanup()
		e.logCleanup = nil
	}
}
