package xcron

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Empty(t *testing.T) {
	s := newStats()

	assert.Zero(t, s.TotalExecutions())
	assert.Zero(t, s.SuccessRate())
	assert.Zero(t, s.AvgDuration())
	assert.Zero(t, s.MinDuration())
	assert.Zero(t, s.MaxDuration())
	assert.NoError(t, s.LastError())
	assert.True(t, s.LastExecTime().IsZero())
	assert.Nil(t, s.JobStats("missing"))
	assert.Empty(t, s.AllJobStats())
}

func TestStats_Record(t *testing.T) {
	s := newStats()
	errFail := errors.New("fail")
	errLock := errors.New("lock")

	s.recordExecution("a", 10*time.Millisecond, nil)
	s.recordExecution("a", 30*time.Millisecond, errFail)
	s.recordExecution("b", 20*time.Millisecond, nil)
	s.recordSkip("a")
	s.recordLockError("b", errLock)

	assert.Equal(t, int64(3), s.TotalExecutions())
	assert.Equal(t, int64(2), s.SuccessCount())
	assert.Equal(t, int64(1), s.FailureCount())
	assert.Equal(t, int64(1), s.SkipCount())
	assert.Equal(t, int64(1), s.LockErrorCount())
	assert.InDelta(t, 2.0/3.0, s.SuccessRate(), 1e-9)
	assert.Equal(t, 10*time.Millisecond, s.MinDuration())
	assert.Equal(t, 30*time.Millisecond, s.MaxDuration())
	assert.Equal(t, 20*time.Millisecond, s.AvgDuration())
	assert.Equal(t, 20*time.Millisecond, s.LastDuration())
	assert.ErrorIs(t, s.LastError(), errLock)

	a := s.JobStats("a")
	require.NotNil(t, a)
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, int64(2), a.TotalExecutions())
	assert.Equal(t, int64(1), a.SkipCount())
	assert.Zero(t, a.LockErrorCount())
	assert.InDelta(t, 0.5, a.SuccessRate(), 1e-9)
	assert.ErrorIs(t, a.LastError(), errFail)

	b := s.JobStats("b")
	require.NotNil(t, b)
	assert.Equal(t, int64(1), b.LockErrorCount())
	assert.Len(t, s.AllJobStats(), 2)
}

func TestStats_Concurrent(t *testing.T) {
	s := newStats()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.recordExecution("job", time.Duration(i+1)*time.Millisecond, nil)
			s.recordSkip("job")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), s.TotalExecutions())
	assert.Equal(t, int64(50), s.SkipCount())
	assert.Equal(t, time.Millisecond, s.MinDuration())
	assert.Equal(t, 50*time.Millisecond, s.MaxDuration())
	assert.Equal(t, int64(50), s.JobStats("job").SuccessCount())
}

func TestStats_Snapshot(t *testing.T) {
	s := newStats()
	s.recordExecution("a", time.Second, errors.New("fail"))
	s.recordSkip("a")

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.SkipCount)
	assert.Equal(t, "fail", snap.LastError)
	require.Contains(t, snap.Jobs, "a")
	assert.Equal(t, "a", snap.Jobs["a"].Name)
	assert.Equal(t, int64(1), snap.Jobs["a"].FailureCount)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.InDelta(t, 1, decoded["skip_count"], 0)
	assert.Contains(t, decoded, "lock_error_count")
	assert.Contains(t, decoded, "jobs")
}
