package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/did"
)

func newDoc(t *testing.T) *did.Document {
	t.Helper()

	id, err := did.NewIdentity(did.DefaultMethod, did.HolderKeyFragment)
	require.NoError(t, err)

	return id.Document()
}

func TestRegistry(t *testing.T) {
	doc := newDoc(t)
	r := NewRegistry()
	require.NoError(t, r.Publish(doc))

	got, err := r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = r.Resolve(context.Background(), "did:fed:0xunknown")
	assert.ErrorIs(t, err, fedtrust.ErrIdentityResolution)
	assert.ErrorIs(t, err, fedtrust.ErrNotFound)

	err = r.Publish(&did.Document{ID: "bogus"})
	assert.ErrorIs(t, err, fedtrust.ErrIdentityResolution)
}

func TestHTTPResolver(t *testing.T) {
	doc := newDoc(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := url.PathUnescape(r.URL.EscapedPath()[1:])

		switch id {
		case doc.ID:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"didDocument": doc})
		case "did:fed:0xbroken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL+"/", WithHTTPClient(srv.Client()))

	got, err := r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.VerificationMethod, got.VerificationMethod)

	_, err = r.Resolve(context.Background(), "did:fed:0xmissing")
	assert.ErrorIs(t, err, fedtrust.ErrNotFound)

	_, err = r.Resolve(context.Background(), "did:fed:0xbroken")
	assert.ErrorIs(t, err, fedtrust.ErrNetwork)
	assert.ErrorIs(t, err, fedtrust.ErrIdentityResolution)
}

func TestHTTPResolverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewHTTPResolver(srv.URL).Resolve(context.Background(), "did:fed:0x1")
	assert.ErrorIs(t, err, fedtrust.ErrNetwork)
}

func TestDecodeDocumentBare(t *testing.T) {
	doc := newDoc(t)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := decodeDocument(doc.ID, raw)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	_, err = decodeDocument("did:fed:0xother", raw)
	assert.ErrorIs(t, err, fedtrust.ErrNotFound)
}
