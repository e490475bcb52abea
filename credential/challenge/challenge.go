// Package challenge issues time-bound nonces and verifies the presentations bound to them.
package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/provider"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/credential/vp"
	"github.com/pilacorp/go-fedtrust/did"
)

// DefaultWindow is how long a challenge stays valid.
const DefaultWindow = 10 * time.Minute

const nonceBits = 128

// Challenge is a one-time nonce with the instant after which it is no longer accepted.
type Challenge struct {
	Nonce  string
	Expiry time.Time
}

// NonceStore tracks outstanding nonces so each one is accepted at most once.
type NonceStore interface {
	// Register records nonce as outstanding until ttl elapses.
	Register(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume removes nonce and reports whether it was outstanding.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// Opt configures an Engine.
type Opt func(*Engine)

// WithWindow sets the challenge validity window.
func WithWindow(window time.Duration) Opt {
	return func(e *Engine) {
		if window > 0 {
			e.window = window
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Opt {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNonceStore makes every challenge single-use across sessions.
func WithNonceStore(store NonceStore) Opt {
	return func(e *Engine) {
		e.store = store
	}
}

// WithNonceSource replaces the crypto/rand nonce generator.
func WithNonceSource(source func() (string, error)) Opt {
	return func(e *Engine) {
		if source != nil {
			e.newNonce = source
		}
	}
}

// Engine creates challenges and verifies presentations against them.
type Engine struct {
	credentials *vc.Engine
	resolver    provider.Resolver
	store       NonceStore
	window      time.Duration
	now         func() time.Time
	newNonce    func() (string, error)
}

// NewEngine creates a challenge engine. credentials validates the presented credential
// and resolver looks up holder documents.
func NewEngine(credentials *vc.Engine, resolver provider.Resolver, opts ...Opt) *Engine {
	e := &Engine{
		credentials: credentials,
		resolver:    resolver,
		window:      DefaultWindow,
		now:         time.Now,
		newNonce:    randomNonce,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// randomNonce draws 128 bits from crypto/rand and renders them in decimal.
func randomNonce() (string, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), nonceBits))
	if err != nil {
		return "", fmt.Errorf("failed to draw nonce: %w", err)
	}

	return n.String(), nil
}

// CreateChallenge draws a fresh nonce valid for the engine's window.
func (e *Engine) CreateChallenge(ctx context.Context) (Challenge, error) {
	nonce, err := e.newNonce()
	if err != nil {
		return Challenge{}, err
	}

	ch := Challenge{
		Nonce:  nonce,
		Expiry: e.now().UTC().Truncate(time.Second).Add(e.window),
	}

	if e.store != nil {
		if err := e.store.Register(ctx, nonce, e.window); err != nil {
			return Challenge{}, fmt.Errorf("failed to register nonce: %w", err)
		}
	}

	return ch, nil
}

// VerifyPresentation checks raw against ch and returns the authenticated holder DID.
//
// Checks run in order and stop at the first failure: structure, nonce, challenge
// expiry, bound expiry, credential count, inner credential against issuerDoc, holder
// signature against the holder's own document, holder is the credential subject, and
// finally the nonce is consumed so it cannot be replayed.
func (e *Engine) VerifyPresentation(ctx context.Context, raw []byte, issuerDoc *did.Document, ch Challenge) (string, error) {
	p, err := vp.Parse(raw)
	if err != nil {
		return "", err
	}

	if p.Proof.Challenge != ch.Nonce {
		return "", fedtrust.NewValidationError(fedtrust.ChallengeMismatch, "presentation is bound to another nonce")
	}

	if e.now().After(ch.Expiry) {
		return "", fedtrust.NewValidationError(fedtrust.Expired, "challenge expired at %s", ch.Expiry.Format(time.RFC3339))
	}

	bound, err := p.Expires()
	if err != nil {
		return "", err
	}
	if !bound.Equal(ch.Expiry) {
		return "", fedtrust.NewValidationError(fedtrust.ChallengeMismatch, "presentation is bound to another expiry")
	}

	if len(p.Credentials) != 1 {
		return "", fedtrust.NewValidationError(fedtrust.MultiCredentialUnsupported, "presentation carries %d credentials", len(p.Credentials))
	}

	cred, err := e.credentials.Validate(p.Credentials[0], issuerDoc)
	if err != nil {
		return "", err
	}

	holderDoc, err := e.resolver.Resolve(ctx, p.Holder)
	if err != nil {
		return "", fmt.Errorf("failed to resolve holder: %w", err)
	}

	if err := p.Verify(holderDoc); err != nil {
		return "", err
	}

	if cred.Subject.ID != p.Holder {
		return "", fedtrust.NewValidationError(fedtrust.SubjectMismatch, "credential subject %s is not holder %s", cred.Subject.ID, p.Holder)
	}

	if e.store != nil {
		ok, err := e.store.Consume(ctx, ch.Nonce)
		if err != nil {
			return "", fmt.Errorf("failed to consume nonce: %w", err)
		}
		if !ok {
			return "", fedtrust.NewValidationError(fedtrust.ChallengeMismatch, "nonce already used or never issued")
		}
	}

	return p.Holder, nil
}
