// Package xlog 基于 log/slog 的结构化日志库。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、轮转）
//   - 自动从 context 注入 OpenTelemetry trace_id / span_id（默认启用）
//   - 动态级别调整（运行时热更新）
//
// # 创建 Logger
//
// Builder 遵循 first-error-wins：第一个配置错误会在 [Builder.Build] 时返回。
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("debug").
//	    SetFormat("json").
//	    SetRotation("/var/log/xsingle/app.log", xlog.WithMaxSize(100)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
//	logger.Info(ctx, "lock acquired", xlog.Job("reports.daily"), xlog.LockKey(key))
//
// Logger 的方法签名与 xsingle.Logger 一致，可直接传给 xsingle.WithLogger。
package xlog
