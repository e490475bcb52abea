// Package ledger broadcasts signed records to every participant through an append-only,
// tag-indexed ledger.
package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Client

import (
	"context"
	"strconv"
)

// DefaultTagPrefix prefixes the per-round tags.
const DefaultTagPrefix = "fedtrust"

// RecordID is the ledger-assigned identifier of a record.
type RecordID string

// Record is an entry read back from the ledger.
type Record struct {
	ID      RecordID
	Tag     string
	Payload []byte
}

// Client is the ledger capability: publish under a tag and list everything carrying a tag.
type Client interface {
	// Publish appends payload under tag and returns the id the ledger assigned.
	Publish(ctx context.Context, tag string, payload []byte) (RecordID, error)
	// Query returns the records currently visible under tag. The same record may be
	// returned by several calls.
	Query(ctx context.Context, tag string) ([]Record, error)
}

// RoundTag returns the tag for round under prefix, e.g. "fedtrust#3".
func RoundTag(prefix string, round int) string {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}

	return prefix + "#" + strconv.Itoa(round)
}
