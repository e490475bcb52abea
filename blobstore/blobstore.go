// Package blobstore stores opaque payloads under content addresses.
package blobstore

//go:generate mockgen -source=blobstore.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	fedtrust "github.com/pilacorp/go-fedtrust"
)

// Store is the content-addressed blob capability.
type Store interface {
	// Put stores data and returns its content address.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the bytes stored under address. Failures wrap fedtrust.ErrFetch.
	Get(ctx context.Context, address string) ([]byte, error)
}

// ContentAddress returns the CIDv1 (raw codec, sha2-256) of data.
func ContentAddress(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash blob: %w", err)
	}

	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// Verify checks that data hashes to address, using the hash function address names.
func Verify(address string, data []byte) error {
	want, err := cid.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: invalid content address %q: %w", fedtrust.ErrFetch, address, err)
	}

	got, err := want.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("%w: failed to hash blob: %w", fedtrust.ErrFetch, err)
	}

	if !got.Equals(want) {
		return fmt.Errorf("%w: content does not match address %s", fedtrust.ErrFetch, address)
	}

	return nil
}

// NotFound builds the error returned for an unknown address.
func NotFound(address string) error {
	return fmt.Errorf("%w: %w: %s", fedtrust.ErrFetch, fedtrust.ErrNotFound, address)
}
