package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/did"
)

func TestDirResolver(t *testing.T) {
	dir := t.TempDir()
	r := NewDirResolver(dir)
	doc := newDoc(t)

	_, err := r.Resolve(context.Background(), doc.ID)
	assert.ErrorIs(t, err, fedtrust.ErrNotFound)

	require.NoError(t, WriteDocument(dir, doc))

	got, err := r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.VerificationMethod, got.VerificationMethod)

	t.Run("corrupt file", func(t *testing.T) {
		other := newDoc(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, DocumentFileName(other.ID)), []byte("{"), 0o600))

		_, err := r.Resolve(context.Background(), other.ID)
		assert.ErrorIs(t, err, fedtrust.ErrIdentityResolution)
		assert.ErrorIs(t, err, fedtrust.ErrNetwork)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.Resolve(ctx, doc.ID)
		assert.ErrorIs(t, err, fedtrust.ErrNetwork)
	})
}

func TestWriteDocumentInvalid(t *testing.T) {
	err := WriteDocument(t.TempDir(), &did.Document{ID: "bogus"})
	require.Error(t, err)
}

func TestDocumentFileName(t *testing.T) {
	assert.Equal(t, "did_fed_0xabc.json", DocumentFileName("did:fed:0xabc"))
}
