package xsingle

import (
	"context"
	"log/slog"
)

// Logger 日志接口，兼容 xlog.Logger。
// 如果不设置，使用 slog.Default() 输出。
type Logger interface {
	// Debug 记录调试日志
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	// Info 记录信息日志
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	// Warn 记录警告日志
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	// Error 记录错误日志
	Error(ctx context.Context, msg string, attrs ...slog.Attr)
}

// slogLogger 将 slog.Default() 适配为 Logger。
// 每次调用都读取当前默认 logger，以便 slog.SetDefault 之后的配置生效。
type slogLogger struct{}

func (slogLogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.Default().LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

func (slogLogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.Default().LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (slogLogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.Default().LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

func (slogLogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	slog.Default().LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

// loggerOrDefault 返回非 nil 的 Logger。
func loggerOrDefault(l Logger) Logger {
	if l == nil {
		return slogLogger{}
	}
	return l
}
