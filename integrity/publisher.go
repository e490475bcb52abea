// Package integrity anchors model contributions and verifies them through the chain
// ledger pointer -> holder credential -> blob -> signed digest -> payload.
package integrity

import (
	"context"
	"fmt"

	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/blobstore"
	"github.com/pilacorp/go-fedtrust/credential/common/crypto"
	"github.com/pilacorp/go-fedtrust/credential/common/signable"
	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
	"github.com/pilacorp/go-fedtrust/ledger"
)

var logger = log.New("integrity")

// Receipt describes an anchored contribution.
type Receipt struct {
	RecordID ledger.RecordID
	Tag      string
	Address  string
}

// PublisherOpt configures a Publisher.
type PublisherOpt func(*Publisher)

// WithPublisherTagPrefix sets the prefix of round tags.
func WithPublisherTagPrefix(prefix string) PublisherOpt {
	return func(p *Publisher) {
		p.tagPrefix = prefix
	}
}

// Publisher anchors a holder's contributions.
type Publisher struct {
	holder     did.Signer
	credential []byte
	blobs      blobstore.Store
	channel    *ledger.Channel
	tagPrefix  string
}

func NewPublisher(holder did.Signer, credential []byte, blobs blobstore.Store, channel *ledger.Channel, opts ...PublisherOpt) *Publisher {
	p := &Publisher{
		holder:     holder,
		credential: credential,
		blobs:      blobs,
		channel:    channel,
		tagPrefix:  ledger.DefaultTagPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish signs the digest of payload, stores payload with that signature in the blob
// store, and anchors a signed pointer to the blob under the round's tag.
func (p *Publisher) Publish(ctx context.Context, round int, payload []byte) (*Receipt, error) {
	signedHash, err := signable.New(crypto.DigestHex(payload)).Sign(ctx, p.holder)
	if err != nil {
		return nil, fmt.Errorf("sign payload digest: %w", err)
	}

	blob, err := EncodeBlob(payload, signedHash)
	if err != nil {
		return nil, err
	}

	address, err := p.blobs.Put(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	pointer, err := signable.New(EncodePointer(p.credential, address)).Sign(ctx, p.holder)
	if err != nil {
		return nil, fmt.Errorf("sign pointer: %w", err)
	}

	raw, err := pointer.Marshal()
	if err != nil {
		return nil, err
	}

	tag := ledger.RoundTag(p.tagPrefix, round)

	id, err := p.channel.Publish(ctx, tag, raw)
	if err != nil {
		return nil, err
	}

	logger.Infoc(ctx, "Contribution anchored", logfields.WithRound(round),
		logfields.WithRecordID(string(id)), logfields.WithCID(address))

	return &Receipt{RecordID: id, Tag: tag, Address: address}, nil
}
