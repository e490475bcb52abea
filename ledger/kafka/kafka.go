// Package kafka implements the ledger client on a Kafka topic. Records are keyed by tag and
// identified by "<partition>-<offset>".
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pilacorp/go-fedtrust/ledger"
)

// DefaultTopic holds every ledger record.
const DefaultTopic = "fedtrust.ledger"

// Ledger publishes with a long-lived producer and reads each query with a short-lived
// consumer bounded by the end offsets observed at query time.
type Ledger struct {
	seeds    []string
	topic    string
	producer *kgo.Client
	admin    *kadm.Client
}

// New connects to the brokers in seeds.
func New(seeds []string, topic string) (*Ledger, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Ledger{
		seeds:    seeds,
		topic:    topic,
		producer: producer,
		admin:    kadm.NewClient(producer),
	}, nil
}

// EnsureTopic creates the ledger topic unless it exists already.
func (l *Ledger) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	resp, err := l.admin.CreateTopic(ctx, partitions, replicationFactor, nil, l.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", l.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", l.topic, resp.Err)
	}

	return nil
}

func (l *Ledger) Publish(ctx context.Context, tag string, payload []byte) (ledger.RecordID, error) {
	rec, err := l.producer.ProduceSync(ctx, &kgo.Record{
		Topic: l.topic,
		Key:   []byte(tag),
		Value: payload,
	}).First()
	if err != nil {
		return "", fmt.Errorf("produce %s: %w", tag, err)
	}

	return recordID(rec), nil
}

func (l *Ledger) Query(ctx context.Context, tag string) ([]ledger.Record, error) {
	starts, err := listOffsets(ctx, l.admin.ListStartOffsets, l.topic)
	if err != nil {
		return nil, fmt.Errorf("list start offsets: %w", err)
	}

	ends, err := listOffsets(ctx, l.admin.ListEndOffsets, l.topic)
	if err != nil {
		return nil, fmt.Errorf("list end offsets: %w", err)
	}

	ranges := readRanges(starts, ends)
	if len(ranges) == 0 {
		return nil, nil
	}

	partitions := make(map[int32]kgo.Offset, len(ranges))
	remaining := make(map[int32]int64, len(ranges))
	for p, r := range ranges {
		partitions[p] = kgo.NewOffset().At(r.start)
		remaining[p] = r.end
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(l.seeds...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{l.topic: partitions}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	var records []ledger.Record

	for len(remaining) > 0 {
		fetches := consumer.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			return nil, fmt.Errorf("fetch %s/%d: %w", errs[0].Topic, errs[0].Partition, errs[0].Err)
		}

		fetches.EachRecord(func(r *kgo.Record) {
			end, ok := remaining[r.Partition]
			if !ok || r.Offset >= end {
				return
			}
			if r.Offset == end-1 {
				delete(remaining, r.Partition)
			}
			if string(r.Key) == tag {
				records = append(records, ledger.Record{ID: recordID(r), Tag: tag, Payload: r.Value})
			}
		})
	}

	return records, nil
}

// offsetRange is the span [start, end) of offsets a partition holds.
type offsetRange struct {
	start, end int64
}

// readRanges returns the partitions holding records, up to the offsets seen now.
// Partitions emptied by retention are left out.
func readRanges(starts, ends kadm.ListedOffsets) map[int32]offsetRange {
	ranges := make(map[int32]offsetRange)

	ends.Each(func(o kadm.ListedOffset) {
		var start int64
		if s, ok := starts.Lookup(o.Topic, o.Partition); ok && s.Offset > 0 {
			start = s.Offset
		}

		if o.Offset > start {
			ranges[o.Partition] = offsetRange{start: start, end: o.Offset}
		}
	})

	return ranges
}

func listOffsets(ctx context.Context,
	list func(context.Context, ...string) (kadm.ListedOffsets, error), topic string,
) (kadm.ListedOffsets, error) {
	offsets, err := list(ctx, topic)
	if err == nil {
		err = offsets.Error()
	}
	if errors.Is(err, kerr.UnknownTopicOrPartition) {
		return nil, nil
	}

	return offsets, err
}

// Close releases the producer connection.
func (l *Ledger) Close() {
	l.producer.Close()
}

func recordID(r *kgo.Record) ledger.RecordID {
	return ledger.RecordID(fmt.Sprintf("%d-%d", r.Partition, r.Offset))
}
