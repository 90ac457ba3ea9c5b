package xsingle

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileBackend(t *testing.T) (*FileBackend, *testClock) {
	t.Helper()
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "locks"))
	require.NoError(t, err)
	clock := newTestClock()
	b.now = clock.Now
	return b, clock
}

func TestNewFileBackend_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, b.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// 已存在的目录可以直接使用
	_, err = NewFileBackend(dir)
	assert.NoError(t, err)
}

func TestNewFileBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := NewFileBackend(path)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = NewFileBackend("  ")
	assert.Error(t, err)
}

func TestFileBackend_WritesEpochSeconds(t *testing.T) {
	b, clock := newTestFileBackend(t)

	ok, err := b.Acquire(context.Background(), "tasks.sync", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(filepath.Join(b.Dir(), "tasks.sync.lock"))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(clock.Now().Unix(), 10), string(data))
}

func TestFileBackend_BlankOrGarbageIsAbsent(t *testing.T) {
	for name, content := range map[string]string{
		"blank":   "",
		"spaces":  "  \n",
		"garbage": "not-a-number",
	} {
		t.Run(name, func(t *testing.T) {
			b, _ := newTestFileBackend(t)
			path := filepath.Join(b.Dir(), "tasks.sync.lock")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			held, err := b.Exists(context.Background(), "tasks.sync", time.Minute)
			require.NoError(t, err)
			assert.False(t, held)

			ok, err := b.Acquire(context.Background(), "tasks.sync", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestFileBackend_WhitespaceAroundEpoch(t *testing.T) {
	b, clock := newTestFileBackend(t)
	path := filepath.Join(b.Dir(), "tasks.sync.lock")
	content := " " + strconv.FormatInt(clock.Now().Unix(), 10) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	held, err := b.Exists(context.Background(), "tasks.sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestFileBackend_SecondGranularity(t *testing.T) {
	b, clock := newTestFileBackend(t)
	ctx := context.Background()

	ok, err := b.Acquire(ctx, "tasks.sync", 1500*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// 1.5s 向上取整为 2s
	clock.Advance(1500 * time.Millisecond)
	held, err := b.Exists(ctx, "tasks.sync", 1500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, held)

	clock.Advance(500 * time.Millisecond)
	held, err = b.Exists(ctx, "tasks.sync", 1500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestFileBackend_InvalidKeys(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx := context.Background()

	for _, key := range []string{"../escape", "a/b", `a\b`, "nul\x00", ".."} {
		_, err := b.Acquire(ctx, key, time.Minute)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, b.Release(ctx, key), ErrInvalidKey, key)
	}
}

func TestFileBackend_CanceledContext(t *testing.T) {
	b, _ := newTestFileBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Acquire(ctx, "tasks.sync", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileBackend_ReleaseFailure(t *testing.T) {
	b, _ := newTestFileBackend(t)

	// 同名目录非空时删除失败，错误必须上抛
	dir := filepath.Join(b.Dir(), "tasks.dir.lock")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "child"), 0o750))

	err := b.Release(context.Background(), "tasks.dir")
	assert.Error(t, err)
}
