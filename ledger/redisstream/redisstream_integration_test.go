//go:build integration

package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-fedtrust/internal/testutil/containers"
	"github.com/pilacorp/go-fedtrust/ledger"
)

func TestRedisStreamLedger(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	l := New(rc.Client, WithKeyPrefix("test:"), WithOpTimeout(5*time.Second))

	records, err := l.Query(ctx, "round-3")
	require.NoError(t, err)
	assert.Empty(t, records)

	idA, err := l.Publish(ctx, "round-3", []byte("holder A"))
	require.NoError(t, err)
	idB, err := l.Publish(ctx, "round-3", []byte("holder B"))
	require.NoError(t, err)
	_, err = l.Publish(ctx, "round-4", []byte("other"))
	require.NoError(t, err)

	records, err = l.Query(ctx, "round-3")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, idA, records[0].ID)
	assert.Equal(t, "holder B", string(records[1].Payload))
	assert.Equal(t, idB, records[1].ID)

	collected, err := ledger.NewChannel(l, ledger.WithPollBackoff(10*time.Millisecond, 50*time.Millisecond, 2)).
		PollUntil(ctx, "round-3", 2)
	require.NoError(t, err)
	assert.Len(t, collected, 2)
}
