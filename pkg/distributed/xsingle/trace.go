package xsingle

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// instrumentationName Meter / Tracer 的 scope 名称
	instrumentationName = "xsingle"
	// instrumentationVersion 埋点版本
	instrumentationVersion = "0.1.0"
)

// Span 操作名称
const (
	spanNameAcquire = "xsingle.Acquire"
	spanNameRelease = "xsingle.Release"
)

// Span / Metrics 属性名称
const (
	attrJob      = "xsingle.job"
	attrKey      = "xsingle.key"
	attrBackend  = "xsingle.backend"
	attrTimeout  = "xsingle.timeout_ms"
	attrAcquired = "xsingle.acquired"
	attrSuccess  = "xsingle.success"
)

// getTracer 获取 tracer，未配置 TracerProvider 时使用全局默认。
func getTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
}

// endSpan 根据 err 设置状态并结束 span。
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// startSpan 创建 span，tracer 为 nil 时使用全局 tracer。
func startSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = getTracer(nil)
	}
	return tracer.Start(ctx, name, opts...)
}
