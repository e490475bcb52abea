package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
	"github.com/pilacorp/go-fedtrust/metrics"
)

var logger = log.New("ledger")

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 15 * time.Second
	defaultMultiplier      = 2.0
	defaultPublishRetries  = 5
)

// Opt configures a Channel.
type Opt func(*Channel)

// WithPollBackoff sets the exponential schedule between polls.
func WithPollBackoff(initial, max time.Duration, multiplier float64) Opt {
	return func(c *Channel) {
		if initial > 0 {
			c.initialInterval = initial
		}
		if max > 0 {
			c.maxInterval = max
		}
		if multiplier >= 1 {
			c.multiplier = multiplier
		}
	}
}

// WithMaxWait bounds every PollUntil call in addition to its context.
func WithMaxWait(d time.Duration) Opt {
	return func(c *Channel) {
		c.maxWait = d
	}
}

// WithPublishRetries sets how many times a failed publish is retried.
func WithPublishRetries(n uint64) Opt {
	return func(c *Channel) {
		c.publishRetries = n
	}
}

// WithMetrics observes publish outcomes and poll durations.
func WithMetrics(m *metrics.Metrics) Opt {
	return func(c *Channel) {
		c.metrics = m
	}
}

// Channel publishes to and collects from a ledger Client.
type Channel struct {
	client  Client
	metrics *metrics.Metrics

	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxWait         time.Duration
	publishRetries  uint64
}

func NewChannel(client Client, opts ...Opt) *Channel {
	c := &Channel{
		client:          client,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		publishRetries:  defaultPublishRetries,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Channel) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	b.Multiplier = c.multiplier
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

// Publish appends payload under tag, retrying transient client failures.
func (c *Channel) Publish(ctx context.Context, tag string, payload []byte) (RecordID, error) {
	var id RecordID

	err := backoff.RetryNotify(
		func() error {
			var err error
			id, err = c.client.Publish(ctx, tag, payload)
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.publishRetries), ctx),
		func(err error, wait time.Duration) {
			logger.Warnc(ctx, "Ledger publish failed, retrying", logfields.WithTag(tag),
				log.WithError(err), log.WithDuration(wait))
		},
	)
	if err != nil {
		c.metrics.IncPublished("failed")
		return "", fmt.Errorf("%w: tag %s: %w", fedtrust.ErrPublish, tag, err)
	}

	c.metrics.IncPublished("ok")
	logger.Debugc(ctx, "Record published", logfields.WithTag(tag), logfields.WithRecordID(string(id)))

	return id, nil
}

// PollUntil queries tag until target distinct records have been seen, backing off
// exponentially between queries. Records are deduplicated by id and returned in the order
// they were first seen. When ctx or the configured maximum wait ends first, the records
// collected so far are returned together with ErrPollIncomplete.
func (c *Channel) PollUntil(ctx context.Context, tag string, target int) ([]Record, error) {
	if target <= 0 {
		return nil, nil
	}

	if c.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.maxWait)
		defer cancel()
	}

	start := time.Now()
	b := c.newBackOff()
	seen := make(map[RecordID]struct{}, target)
	collected := make([]Record, 0, target)

	var lastErr error

	for {
		records, err := c.client.Query(ctx, tag)
		if err != nil {
			lastErr = err
			logger.Warnc(ctx, "Ledger query failed", logfields.WithTag(tag), log.WithError(err))
		}

		for _, r := range records {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			collected = append(collected, r)

			if len(collected) == target {
				c.metrics.ObservePoll("complete", time.Since(start))
				logger.Debugc(ctx, "Poll complete", logfields.WithTag(tag), logfields.WithTarget(target),
					log.WithDuration(time.Since(start)))

				return collected, nil
			}
		}

		timer := time.NewTimer(b.NextBackOff())

		select {
		case <-ctx.Done():
			timer.Stop()
			c.metrics.ObservePoll("incomplete", time.Since(start))

			cause := ctx.Err()
			if lastErr != nil {
				cause = fmt.Errorf("%w (last query error: %v)", cause, lastErr)
			}

			return collected, fmt.Errorf("%w: %d of %d records under %s: %w",
				fedtrust.ErrPollIncomplete, len(collected), target, tag, cause)
		case <-timer.C:
		}
	}
}
