//go:build integration

package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-fedtrust/internal/testutil/containers"
)

func TestRedisNonceStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	store := NewRedisNonceStore(rc.Client, 5*time.Second)

	require.NoError(t, store.Register(ctx, "12345", time.Minute))

	ok, err := store.Consume(ctx, "12345")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "12345")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Consume(ctx, "never-issued")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Register(ctx, "short", time.Second))
	time.Sleep(1500 * time.Millisecond)

	ok, err = store.Consume(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}
