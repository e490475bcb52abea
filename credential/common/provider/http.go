package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pilacorp/go-fedtrust/did"
)

const maxDocumentSize = 1 << 20

// HTTPResolver resolves DIDs against a universal-resolver style endpoint:
// GET <baseURL>/<did> returns the DID document.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// HTTPOpt configures an HTTPResolver.
type HTTPOpt func(*HTTPResolver)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(client *http.Client) HTTPOpt {
	return func(r *HTTPResolver) {
		r.client = client
	}
}

// NewHTTPResolver creates a new DID resolver with a given base URL.
func NewHTTPResolver(baseURL string, opts ...HTTPOpt) *HTTPResolver {
	r := &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *HTTPResolver) Resolve(ctx context.Context, id string) (*did.Document, error) {
	apiURL := r.baseURL + "/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, networkError(id, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/did+json, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, networkError(id, fmt.Errorf("failed to make HTTP request to DID resolver: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, notFound(id)
	case resp.StatusCode != http.StatusOK:
		return nil, networkError(id, fmt.Errorf("DID resolver API returned non-200 status: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, networkError(id, fmt.Errorf("failed to read response body from DID resolver: %w", err))
	}

	return decodeDocument(id, body)
}

// decodeDocument accepts both a bare DID document and a resolution result wrapping it.
func decodeDocument(id string, body []byte) (*did.Document, error) {
	var envelope struct {
		Document *did.Document `json:"didDocument"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Document != nil {
		return checkDocument(id, envelope.Document)
	}

	var doc did.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, networkError(id, fmt.Errorf("failed to unmarshal DID document JSON: %w", err))
	}

	return checkDocument(id, &doc)
}

func checkDocument(id string, doc *did.Document) (*did.Document, error) {
	if doc.ID != id {
		return nil, notFound(id)
	}

	return doc, nil
}
