package challenge

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/credential/common/provider"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/credential/vp"
	"github.com/pilacorp/go-fedtrust/did"
)

type fixture struct {
	issuer   *did.Identity
	holder   *did.Identity
	registry *provider.Registry
	cred     *vc.Credential
	now      time.Time
	engine   *Engine
}

func newFixture(t *testing.T, opts ...Opt) *fixture {
	t.Helper()

	f := &fixture{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}

	var err error
	f.issuer, err = did.NewIdentity(did.DefaultMethod, did.IssuerKeyFragment)
	require.NoError(t, err)
	f.holder, err = did.NewIdentity(did.DefaultMethod, did.HolderKeyFragment)
	require.NoError(t, err)
	f.registry = provider.NewRegistry(f.issuer.Document(), f.holder.Document())

	clock := func() time.Time { return f.now }
	credentials := vc.NewEngine(vc.WithClock(clock))

	f.cred, err = credentials.Issue(context.Background(), f.issuer, f.holder.DID(), vc.DefaultClaimType, nil)
	require.NoError(t, err)

	f.engine = NewEngine(credentials, f.registry, append([]Opt{WithClock(clock)}, opts...)...)

	return f
}

func (f *fixture) present(t *testing.T, holder did.Signer, rawVC []byte, ch Challenge) []byte {
	t.Helper()

	raw, err := vp.Create(context.Background(), holder, rawVC, ch.Nonce, ch.Expiry)
	require.NoError(t, err)

	return raw
}

func TestCreateChallenge(t *testing.T) {
	f := newFixture(t)

	ch, err := f.engine.CreateChallenge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultWindow), ch.Expiry)

	n, ok := new(big.Int).SetString(ch.Nonce, 10)
	require.True(t, ok)
	assert.True(t, n.BitLen() <= nonceBits)

	other, err := f.engine.CreateChallenge(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, ch.Nonce, other.Nonce)

	custom := NewEngine(nil, nil, WithWindow(time.Minute), WithClock(func() time.Time { return f.now }))
	ch, err = custom.CreateChallenge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(time.Minute), ch.Expiry)
}

func TestVerifyPresentationScenario(t *testing.T) {
	f := newFixture(t)
	start := f.now
	ch := Challenge{Nonce: "12345", Expiry: start.Add(10 * time.Minute)}

	raw := f.present(t, f.holder, f.cred.Raw(), ch)

	f.now = start.Add(5 * time.Minute)
	holder, err := f.engine.VerifyPresentation(context.Background(), raw, f.issuer.Document(), ch)
	require.NoError(t, err)
	assert.Equal(t, f.holder.DID(), holder)

	f.now = start.Add(11 * time.Minute)
	_, err = f.engine.VerifyPresentation(context.Background(), raw, f.issuer.Document(), ch)
	assert.ErrorIs(t, err, fedtrust.ErrExpired)
}

func TestVerifyPresentationRejects(t *testing.T) {
	f := newFixture(t)
	ch := Challenge{Nonce: "12345", Expiry: f.now.Add(10 * time.Minute)}

	thief, err := did.NewIdentity(did.DefaultMethod, did.HolderKeyFragment)
	require.NoError(t, err)
	require.NoError(t, f.registry.Publish(thief.Document()))

	other, err := vc.NewEngine().Issue(context.Background(), f.issuer, thief.DID(), vc.DefaultClaimType, nil)
	require.NoError(t, err)

	twoCredentials := func() []byte {
		m, err := jsonmap.Parse(f.present(t, f.holder, f.cred.Raw(), ch))
		require.NoError(t, err)
		first := m["verifiableCredential"].([]interface{})[0]
		m["verifiableCredential"] = []interface{}{first, first}
		delete(m, "proof")
		require.NoError(t, m.AddProof(context.Background(), f.holder, jsonmap.ProofOptions{
			Purpose: "authentication", Challenge: ch.Nonce, Expires: ch.Expiry,
		}))
		raw, err := m.ToJSON()
		require.NoError(t, err)
		return raw
	}

	rogueIssuer, err := did.NewIdentity(did.DefaultMethod, did.IssuerKeyFragment)
	require.NoError(t, err)
	forged, err := vc.NewEngine().Issue(context.Background(), rogueIssuer, f.holder.DID(), vc.DefaultClaimType, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		raw    func() []byte
		ch     Challenge
		target error
	}{
		{
			name:   "different nonce",
			raw:    func() []byte { return f.present(t, f.holder, f.cred.Raw(), Challenge{Nonce: "54321", Expiry: ch.Expiry}) },
			ch:     ch,
			target: fedtrust.ErrChallengeMismatch,
		},
		{
			name:   "different bound expiry",
			raw:    func() []byte { return f.present(t, f.holder, f.cred.Raw(), Challenge{Nonce: ch.Nonce, Expiry: ch.Expiry.Add(time.Hour)}) },
			ch:     ch,
			target: fedtrust.ErrChallengeMismatch,
		},
		{
			name:   "two credentials",
			raw:    twoCredentials,
			ch:     ch,
			target: fedtrust.ErrMultiCredentialUnsupported,
		},
		{
			name:   "credential from another issuer",
			raw:    func() []byte { return f.present(t, f.holder, forged.Raw(), ch) },
			ch:     ch,
			target: fedtrust.ErrBadSignature,
		},
		{
			name:   "replayed credential of someone else",
			raw:    func() []byte { return f.present(t, thief, f.cred.Raw(), ch) },
			ch:     ch,
			target: fedtrust.ErrSubjectMismatch,
		},
		{
			name: "holder field rewritten",
			raw: func() []byte {
				m, err := jsonmap.Parse(f.present(t, thief, other.Raw(), ch))
				require.NoError(t, err)
				m["holder"] = f.holder.DID()
				raw, err := json.Marshal(m)
				require.NoError(t, err)
				return raw
			},
			ch:     ch,
			target: fedtrust.ErrBadSignature,
		},
		{
			name:   "not a presentation",
			raw:    func() []byte { return []byte(`{"holder": 1}`) },
			ch:     ch,
			target: fedtrust.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.VerifyPresentation(context.Background(), tt.raw(), f.issuer.Document(), tt.ch)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestVerifyPresentationUnknownHolder(t *testing.T) {
	f := newFixture(t)
	ch := Challenge{Nonce: "12345", Expiry: f.now.Add(time.Minute)}

	stranger, err := did.NewIdentity(did.DefaultMethod, did.HolderKeyFragment)
	require.NoError(t, err)
	cred, err := vc.NewEngine().Issue(context.Background(), f.issuer, stranger.DID(), vc.DefaultClaimType, nil)
	require.NoError(t, err)

	_, err = f.engine.VerifyPresentation(context.Background(), f.present(t, stranger, cred.Raw(), ch), f.issuer.Document(), ch)
	assert.ErrorIs(t, err, fedtrust.ErrIdentityResolution)
	assert.ErrorIs(t, err, fedtrust.ErrNotFound)
}

func TestVerifyPresentationSingleUse(t *testing.T) {
	f := newFixture(t, WithNonceStore(NewMemoryNonceStore()))

	ch, err := f.engine.CreateChallenge(context.Background())
	require.NoError(t, err)

	raw := f.present(t, f.holder, f.cred.Raw(), ch)

	_, err = f.engine.VerifyPresentation(context.Background(), raw, f.issuer.Document(), ch)
	require.NoError(t, err)

	_, err = f.engine.VerifyPresentation(context.Background(), raw, f.issuer.Document(), ch)
	assert.ErrorIs(t, err, fedtrust.ErrChallengeMismatch)

	unissued := Challenge{Nonce: "777", Expiry: ch.Expiry}
	_, err = f.engine.VerifyPresentation(context.Background(), f.present(t, f.holder, f.cred.Raw(), unissued), f.issuer.Document(), unissued)
	assert.ErrorIs(t, err, fedtrust.ErrChallengeMismatch)
}

func TestMemoryNonceStore(t *testing.T) {
	s := NewMemoryNonceStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "a", time.Minute))
	assert.Error(t, s.Register(ctx, "a", time.Minute))

	ok, err := s.Consume(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Register(ctx, "b", time.Minute))
	now = now.Add(2 * time.Minute)
	ok, err = s.Consume(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}
