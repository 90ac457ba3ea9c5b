package xsingle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey_WithoutArgs(t *testing.T) {
	a, err := ResolveKey("tasks.sync", false, Args(1, 2))
	require.NoError(t, err)
	b, err := ResolveKey("tasks.sync", false, Args(3).With("force", true))
	require.NoError(t, err)

	assert.Equal(t, "tasks.sync", a)
	assert.Equal(t, a, b)
}

func TestResolveKey_SameArgsCollide(t *testing.T) {
	a, err := ResolveKey("tasks.sync", true, Args(1, "x").With("force", true))
	require.NoError(t, err)
	b, err := ResolveKey("tasks.sync", true, Args(1, "x").With("force", true))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "tasks.sync.args."))
	assert.Len(t, strings.TrimPrefix(a, "tasks.sync.args."), 16)
}

func TestResolveKey_DifferentArgsDiffer(t *testing.T) {
	base, err := ResolveKey("tasks.sync", true, Args(1, 2))
	require.NoError(t, err)

	others := []Invocation{
		Args(2, 1),
		Args(1, 2, 3),
		Args(1, 2).With("force", true),
		Args(1, 2).With("force", false),
		{},
	}
	for _, inv := range others {
		key, err := ResolveKey("tasks.sync", true, inv)
		require.NoError(t, err)
		assert.NotEqual(t, base, key, "invocation %+v", inv)
	}
}

func TestResolveKey_KwargsOrderIndependent(t *testing.T) {
	a, err := ResolveKey("job", true, Invocation{Kwargs: map[string]any{"a": 1, "b": 2, "c": 3}})
	require.NoError(t, err)
	b, err := ResolveKey("job", true, Args().With("c", 3).With("a", 1).With("b", 2))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestResolveKey_NumericallyEqualArgsCollide(t *testing.T) {
	a, err := ResolveKey("job", true, Args(1).With("n", int64(2)))
	require.NoError(t, err)
	b, err := ResolveKey("job", true, Args(1.0).With("n", 2.0))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := ResolveKey("job", true, Args(1.5).With("n", 2.0))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestResolveKey_NilAndEmptyArgsEqual(t *testing.T) {
	a, err := ResolveKey("job", true, Invocation{})
	require.NoError(t, err)
	b, err := ResolveKey("job", true, Invocation{Args: []any{}, Kwargs: map[string]any{}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestResolveKey_Errors(t *testing.T) {
	_, err := ResolveKey("  ", false, Invocation{})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = ResolveKey("job", true, Args(make(chan int)))
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestInvocation_WithDoesNotMutate(t *testing.T) {
	orig := Args(1).With("a", 1)
	_ = orig.With("b", 2)

	assert.Len(t, orig.Kwargs, 1)
}
