package xsingle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// metricNameAcquireTotal 获取锁次数计数器
	metricNameAcquireTotal = "xsingle.acquire.total"
	// metricNameReleaseTotal 释放锁次数计数器
	metricNameReleaseTotal = "xsingle.release.total"
	// metricNameAcquireDuration 获取锁耗时直方图
	metricNameAcquireDuration = "xsingle.acquire.duration"
)

// durationBuckets 耗时直方图的桶边界（秒）
var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0}

// Metrics 锁指标收集器。
//
// 标签只包含任务名和后端类型，不包含带参数摘要的完整 key，避免高基数。
type Metrics struct {
	acquireTotal    metric.Int64Counter
	releaseTotal    metric.Int64Counter
	acquireDuration metric.Float64Histogram
}

// NewMetrics 创建指标收集器。
// meterProvider 为 nil 时使用全局 MeterProvider。
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	meter := meterProvider.Meter(instrumentationName,
		metric.WithInstrumentationVersion(instrumentationVersion),
	)

	m := &Metrics{}
	var err error
	if m.acquireTotal, err = meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("锁获取次数"), metric.WithUnit("{acquire}")); err != nil {
		return nil, err
	}
	if m.releaseTotal, err = meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("锁释放次数"), metric.WithUnit("{release}")); err != nil {
		return nil, err
	}
	if m.acquireDuration, err = meter.Float64Histogram(metricNameAcquireDuration,
		metric.WithDescription("锁获取耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAcquire 记录一次获取结果。
// 存储故障时 acquired 为 false，并带上 xsingle.success=false。
func (m *Metrics) RecordAcquire(ctx context.Context, job, backend string, acquired bool, err error, duration time.Duration) {
	if m == nil {
		return
	}

	// ctx 被取消时指标仍需记录
	metricsCtx := context.WithoutCancel(ctx)
	opt := metric.WithAttributes(
		attribute.String(attrJob, job),
		attribute.String(attrBackend, backend),
		attribute.Bool(attrAcquired, acquired),
		attribute.Bool(attrSuccess, err == nil),
	)
	m.acquireTotal.Add(metricsCtx, 1, opt)
	m.acquireDuration.Record(metricsCtx, duration.Seconds(), opt)
}

// RecordRelease 记录一次释放。
func (m *Metrics) RecordRelease(ctx context.Context, job, backend string, err error) {
	if m == nil {
		return
	}

	m.releaseTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String(attrJob, job),
		attribute.String(attrBackend, backend),
		attribute.Bool(attrSuccess, err == nil),
	))
}
