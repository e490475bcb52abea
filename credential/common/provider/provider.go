// Package provider resolves DIDs into DID documents.
package provider

import (
	"context"
	"fmt"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/did"
)

// Resolver resolves a DID string into a DID Document.
//
// Failures wrap fedtrust.ErrIdentityResolution together with fedtrust.ErrNotFound for
// unknown DIDs or fedtrust.ErrNetwork for transport failures.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*did.Document, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, did string) (*did.Document, error)

func (f ResolverFunc) Resolve(ctx context.Context, did string) (*did.Document, error) {
	return f(ctx, did)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %w: %s", fedtrust.ErrIdentityResolution, fedtrust.ErrNotFound, id)
}

func networkError(id string, err error) error {
	return fmt.Errorf("%w: %w: %s: %w", fedtrust.ErrIdentityResolution, fedtrust.ErrNetwork, id, err)
}
