package xcron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

func noop(context.Context) error { return nil }

func TestNew(t *testing.T) {
	t.Run("nil guard", func(t *testing.T) {
		s, err := New(nil)
		assert.ErrorIs(t, err, ErrNilGuard)
		assert.Nil(t, s)
	})

	t.Run("default options", func(t *testing.T) {
		guard := newTestGuard(t)
		s, err := New(guard)
		require.NoError(t, err)
		assert.NotNil(t, s.Cron())
		assert.Same(t, guard, s.Guard())
		assert.NotNil(t, s.Stats())
	})

	t.Run("with seconds", func(t *testing.T) {
		s, err := New(newTestGuard(t), WithSeconds())
		require.NoError(t, err)

		_, err = s.AddFunc("*/5 * * * * *", noop, WithName("every-5s"))
		assert.NoError(t, err)
	})

	t.Run("with parser", func(t *testing.T) {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		s, err := New(newTestGuard(t), WithParser(parser))
		require.NoError(t, err)

		_, err = s.AddFunc("0 */5 * * * *", noop, WithName("every-5m"))
		assert.NoError(t, err)
	})

	t.Run("with location", func(t *testing.T) {
		loc, err := time.LoadLocation("Asia/Shanghai")
		require.NoError(t, err)
		s, err := New(newTestGuard(t), WithLocation(loc), WithLocation(nil))
		require.NoError(t, err)
		assert.Equal(t, loc, s.Cron().Location())
	})
}

func TestScheduler_AddFunc(t *testing.T) {
	s, err := New(newTestGuard(t))
	require.NoError(t, err)
	defer s.Stop()

	t.Run("valid", func(t *testing.T) {
		id, err := s.AddFunc("@every 1m", noop, WithName("valid"))
		assert.NoError(t, err)
		assert.NotZero(t, id)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := s.AddFunc("invalid", noop, WithName("bad-spec"))
		assert.Error(t, err)
	})

	t.Run("nil cmd", func(t *testing.T) {
		_, err := s.AddFunc("@every 1m", nil, WithName("nil"))
		assert.ErrorIs(t, err, ErrNilJob)
	})

	t.Run("nil job", func(t *testing.T) {
		_, err := s.AddJob("@every 1m", nil, WithName("nil"))
		assert.ErrorIs(t, err, ErrNilJob)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := s.AddFunc("@every 1m", noop)
		assert.ErrorIs(t, err, ErrMissingName)
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := s.AddFunc("@every 1m", noop, WithName("   "))
		assert.ErrorIs(t, err, xsingle.ErrEmptyKey)
	})

	t.Run("unencodable args", func(t *testing.T) {
		_, err := s.AddFunc("@every 1m", noop, WithName("args"), WithArgs(xsingle.Args(make(chan int))))
		assert.Error(t, err)
	})
}

func TestScheduler_RemoveAndEntries(t *testing.T) {
	s, err := New(newTestGuard(t))
	require.NoError(t, err)
	defer s.Stop()

	id1, err := s.AddFunc("@every 1m", noop, WithName("a"))
	require.NoError(t, err)
	_, err = s.AddJob("@every 1m", JobFunc(noop), WithName("b"))
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 2)

	s.Remove(id1)
	assert.Len(t, s.Entries(), 1)
}

func TestScheduler_StartRunsJobs(t *testing.T) {
	s, err := New(newTestGuard(t), WithSeconds())
	require.NoError(t, err)

	var runs atomic.Int32
	_, err = s.AddFunc("* * * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	}, WithName("tick"))
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	<-s.Stop().Done()

	js := s.Stats().JobStats("tick")
	require.NotNil(t, js)
	assert.GreaterOrEqual(t, js.SuccessCount(), int64(1))
}

func TestScheduler_Immediate(t *testing.T) {
	s, err := New(newTestGuard(t))
	require.NoError(t, err)

	done := make(chan struct{})
	_, err = s.AddFunc("@every 1h", func(context.Context) error {
		close(done)
		return nil
	}, WithName("warmup"), WithImmediate())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("immediate run did not happen")
	}
	<-s.Stop().Done()
	assert.Equal(t, int64(1), s.Stats().TotalExecutions())
}

func TestScheduler_StopCancelsImmediate(t *testing.T) {
	s, err := New(newTestGuard(t))
	require.NoError(t, err)

	started := make(chan struct{})
	_, err = s.AddFunc("@every 1h", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, WithName("long-warmup"), WithImmediate())
	require.NoError(t, err)

	<-started
	<-s.Stop().Done()

	js := s.Stats().JobStats("long-warmup")
	require.NotNil(t, js)
	assert.ErrorIs(t, js.LastError(), context.Canceled)
}

func TestScheduler_ReplicasRunOnce(t *testing.T) {
	// 两个调度器共享同一锁目录，模拟两个副本
	dir := t.TempDir()
	newReplica := func() Scheduler {
		backend, err := xsingle.NewFileBackend(dir)
		require.NoError(t, err)
		guard, err := xsingle.NewGuard(backend)
		require.NoError(t, err)
		s, err := New(guard)
		require.NoError(t, err)
		return s
	}
	a, b := newReplica(), newReplica()

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := a.AddFunc("@every 1h", func(context.Context) error {
		close(started)
		<-release
		return nil
	}, WithName("report"), WithImmediate())
	require.NoError(t, err)
	<-started

	_, err = b.AddFunc("@every 1h", noop, WithName("report"), WithImmediate())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return b.Stats().SkipCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	close(release)
	<-a.Stop().Done()
	<-b.Stop().Done()
	assert.Equal(t, int64(1), a.Stats().SuccessCount())
	assert.Zero(t, b.Stats().TotalExecutions())
}
