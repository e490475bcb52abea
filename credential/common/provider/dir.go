package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pilacorp/go-fedtrust/did"
)

// DirResolver resolves DIDs from documents kept as files in a shared directory.
// Files are read on every resolution so documents published after start are seen.
type DirResolver struct {
	dir string
}

// NewDirResolver creates a resolver reading documents from dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{dir: dir}
}

// DocumentFileName returns the file name a document for id is stored under.
func DocumentFileName(id string) string {
	return strings.ReplaceAll(id, ":", "_") + ".json"
}

// WriteDocument validates doc and stores it in dir.
func WriteDocument(dir string, doc *did.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal DID document: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	path := filepath.Join(dir, DocumentFileName(doc.ID))
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write DID document: %w", err)
	}

	return os.Rename(tmp, path)
}

func (r *DirResolver) Resolve(ctx context.Context, id string) (*did.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, networkError(id, err)
	}

	data, err := os.ReadFile(filepath.Join(r.dir, DocumentFileName(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, networkError(id, err)
	}

	var doc did.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, networkError(id, fmt.Errorf("failed to unmarshal DID document JSON: %w", err))
	}

	return checkDocument(id, &doc)
}
