// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，支持文件轮转与 trace_id 注入
//
// 指标与链路追踪直接使用 OpenTelemetry API，见 xsingle.WithMeterProvider / WithTracerProvider。
package observability
