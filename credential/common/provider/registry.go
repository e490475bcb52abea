package provider

import (
	"context"
	"fmt"
	"sync"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/did"
)

// Registry is an in-process DID registry. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*did.Document
}

// NewRegistry returns a registry holding docs.
func NewRegistry(docs ...*did.Document) *Registry {
	r := &Registry{docs: make(map[string]*did.Document, len(docs))}
	for _, d := range docs {
		r.docs[d.ID] = d
	}

	return r
}

// Publish validates and stores doc, replacing any previous version.
func (r *Registry) Publish(doc *did.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", fedtrust.ErrIdentityResolution, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[doc.ID] = doc

	return nil
}

func (r *Registry) Resolve(ctx context.Context, id string) (*did.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, networkError(id, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, notFound(id)
	}

	return doc, nil
}
