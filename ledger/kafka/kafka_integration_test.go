//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-fedtrust/internal/testutil/containers"
	"github.com/pilacorp/go-fedtrust/ledger"
)

func TestKafkaLedger(t *testing.T) {
	kc := containers.NewKafkaContainer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	l, err := New([]string{kc.Broker}, "fedtrust.test")
	require.NoError(t, err)
	defer l.Close()

	records, err := l.Query(ctx, "round-3")
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, l.EnsureTopic(ctx, 3, 1))
	require.NoError(t, l.EnsureTopic(ctx, 3, 1))

	ids := make(map[ledger.RecordID]bool)
	for _, payload := range []string{"holder A", "holder B"} {
		id, err := l.Publish(ctx, "round-3", []byte(payload))
		require.NoError(t, err)
		ids[id] = true
	}
	_, err = l.Publish(ctx, "round-4", []byte("other"))
	require.NoError(t, err)

	records, err = l.Query(ctx, "round-3")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, ids[r.ID])
		assert.Equal(t, "round-3", r.Tag)
	}

	collected, err := ledger.NewChannel(l, ledger.WithPollBackoff(10*time.Millisecond, 50*time.Millisecond, 2)).
		PollUntil(ctx, "round-3", 2)
	require.NoError(t, err)
	assert.Len(t, collected, 2)
}
