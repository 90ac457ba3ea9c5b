package xsingle

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// guardOptions Guard 的内部配置
type guardOptions struct {
	defaults       Limits
	logger         Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	releaseTimeout time.Duration
}

// Option Guard 配置选项
type Option func(*guardOptions)

func defaultGuardOptions() *guardOptions {
	return &guardOptions{
		releaseTimeout: DefaultReleaseTimeout,
	}
}

// WithDefaults 设置进程级默认时间限制快照。
//
// 任务未指定锁超时和时间限制时，依次使用 defaults.Hard、defaults.Soft。
func WithDefaults(defaults Limits) Option {
	return func(o *guardOptions) {
		o.defaults = defaults
	}
}

// WithLogger 设置日志记录器，默认使用 slog.Default()。
func WithLogger(logger Logger) Option {
	return func(o *guardOptions) {
		o.logger = logger
	}
}

// WithMeterProvider 设置 MeterProvider，默认使用全局 provider。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *guardOptions) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 provider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *guardOptions) {
		o.tracerProvider = tp
	}
}

// WithReleaseTimeout 设置作用域退出时释放锁的超时，默认 5 秒。
func WithReleaseTimeout(d time.Duration) Option {
	return func(o *guardOptions) {
		if d > 0 {
			o.releaseTimeout = d
		}
	}
}
