package xsingle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"
)

func TestNewGuard_NilBackend(t *testing.T) {
	_, err := NewGuard(nil)
	assert.ErrorIs(t, err, ErrNilBackend)
}

func TestGuard_Manager_ResolvesKeyAndTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	g, err := NewGuard(NewMockBackend(ctrl), WithDefaults(Limits{Hard: 200 * time.Second}))
	require.NoError(t, err)

	tests := []struct {
		name    string
		job     Job
		wantKey string
		want    time.Duration
	}{
		{"explicit override", Job{Name: "a", LockTimeout: 20 * time.Second, Limits: Limits{Hard: 70 * time.Second}}, "a", 20 * time.Second},
		{"job hard limit", Job{Name: "b", Limits: Limits{Hard: 70 * time.Second}}, "b", 70 * time.Second},
		{"global default", Job{Name: "c"}, "c", 200 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := g.Manager(tt.job, Args(1))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, m.Key())
			assert.Equal(t, tt.want, m.Timeout())
		})
	}

	g, err = NewGuard(NewMockBackend(ctrl))
	require.NoError(t, err)
	m, err := g.Manager(Job{Name: "d"}, Invocation{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, m.Timeout())
}

func TestGuard_Run_IncludeArgs(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	g, err := NewGuard(backend)
	require.NoError(t, err)

	job := Job{Name: "tasks.export", IncludeArgs: true, LockTimeout: time.Minute}
	ctx := context.Background()

	err = g.Run(ctx, job, Args("acme"), func(ctx context.Context) error {
		// 相同参数被拒绝
		sameErr := g.Run(ctx, job, Args("acme"), func(context.Context) error {
			t.Fatal("same arguments must not run concurrently")
			return nil
		})
		assert.ErrorIs(t, sameErr, ErrAlreadyRunning)

		// 不同参数可以并发
		ranOther := false
		require.NoError(t, g.Run(ctx, job, Args("globex"), func(context.Context) error {
			ranOther = true
			return nil
		}))
		assert.True(t, ranOther)

		running, err := g.Running(ctx, job, Args("acme"))
		require.NoError(t, err)
		assert.True(t, running)
		return nil
	})
	require.NoError(t, err)

	running, err := g.Running(ctx, job, Args("acme"))
	require.NoError(t, err)
	assert.False(t, running)
}

func TestGuard_Run_InvalidArgs(t *testing.T) {
	ctrl := gomock.NewController(t)
	g, err := NewGuard(NewMockBackend(ctrl))
	require.NoError(t, err)

	err = g.Run(context.Background(), Job{Name: "x", IncludeArgs: true}, Args(func() {}), func(context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestGuard_Observability(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockBackend(ctrl)

	gomock.InOrder(
		backend.EXPECT().Acquire(gomock.Any(), "report", time.Minute).Return(true, nil),
		backend.EXPECT().Release(gomock.Any(), "report").Return(nil),
		backend.EXPECT().Acquire(gomock.Any(), "report", time.Minute).Return(false, nil),
		backend.EXPECT().Acquire(gomock.Any(), "report", time.Minute).Return(false, errors.New("io")),
	)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	g, err := NewGuard(backend, WithMeterProvider(mp), WithTracerProvider(tp))
	require.NoError(t, err)

	job := Job{Name: "report", LockTimeout: time.Minute}
	ctx := context.Background()
	noop := func(context.Context) error { return nil }

	require.NoError(t, g.Run(ctx, job, Invocation{}, noop))
	assert.ErrorIs(t, g.Run(ctx, job, Invocation{}, noop), ErrAlreadyRunning)
	assert.Error(t, g.Run(ctx, job, Invocation{}, noop))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	acquires := sumByAttr(t, rm, metricNameAcquireTotal, attrAcquired)
	assert.Equal(t, int64(1), acquires["true"])
	assert.Equal(t, int64(2), acquires["false"])

	releases := sumByAttr(t, rm, metricNameReleaseTotal, attrSuccess)
	assert.Equal(t, int64(1), releases["true"])

	spans := recorder.Ended()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{spanNameAcquire, spanNameRelease, spanNameAcquire, spanNameAcquire}, names)
	assert.Equal(t, codes.Error, spans[3].Status().Code)
}

// sumByAttr 汇总 int64 计数器，按属性值分组。
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	t.Helper()

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.Emit()] += dp.Value
			}
		}
	}
	return out
}
