// Package redisstream implements the ledger client on Redis Streams, one stream per tag.
package redisstream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pilacorp/go-fedtrust/ledger"
)

const (
	defaultKeyPrefix = "fedtrust:ledger:"
	payloadField     = "payload"
	defaultTimeout   = 10 * time.Second
)

// Opt configures a Ledger.
type Opt func(*Ledger)

// WithKeyPrefix sets the prefix of the stream keys.
func WithKeyPrefix(prefix string) Opt {
	return func(l *Ledger) {
		l.prefix = prefix
	}
}

// WithOpTimeout bounds every Redis call.
func WithOpTimeout(d time.Duration) Opt {
	return func(l *Ledger) {
		if d > 0 {
			l.opTimeout = d
		}
	}
}

// Ledger stores records in Redis Streams. Record ids are the ids assigned by XADD.
type Ledger struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

func New(client redis.UniversalClient, opts ...Opt) *Ledger {
	l := &Ledger{client: client, prefix: defaultKeyPrefix, opTimeout: defaultTimeout}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Ledger) Publish(ctx context.Context, tag string, payload []byte) (ledger.RecordID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.prefix + tag,
		Values: map[string]interface{}{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", tag, err)
	}

	return ledger.RecordID(id), nil
}

func (l *Ledger) Query(ctx context.Context, tag string) ([]ledger.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	msgs, err := l.client.XRange(ctx, l.prefix+tag, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", tag, err)
	}

	records := make([]ledger.Record, 0, len(msgs))
	for _, msg := range msgs {
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			continue
		}

		records = append(records, ledger.Record{
			ID:      ledger.RecordID(msg.ID),
			Tag:     tag,
			Payload: []byte(payload),
		})
	}

	return records, nil
}
