package xlog

import (
	"context"
	"log/slog"
)

// Logger 日志接口
//
// 所有方法都需要 context.Context，以便注入追踪信息。
// 方法签名只接受 slog.Attr。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带额外属性的派生 Logger，与父 Logger 共享级别。
	With(attrs ...slog.Attr) Logger
}

// Leveler 级别控制接口
type Leveler interface {
	// SetLevel 动态设置日志级别，运行时生效
	SetLevel(level Level)
	// GetLevel 获取当前日志级别
	GetLevel() Level
	// Enabled 检查指定级别是否启用
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 组合接口：Logger + Leveler，[Builder.Build] 返回此接口。
type LoggerWithLevel interface {
	Logger
	Leveler

	// Slog 返回共享同一 handler 的 *slog.Logger，用于 slog.SetDefault。
	Slog() *slog.Logger
}
