package vc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/did"
)

type failingSigner struct {
	*did.Identity
}

func (failingSigner) Sign(context.Context, string, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: hsm offline", fedtrust.ErrSigning)
}

func newIdentities(t *testing.T) (*did.Identity, *did.Identity) {
	t.Helper()

	issuer, err := did.NewIdentity(did.DefaultMethod, did.IssuerKeyFragment)
	require.NoError(t, err)
	holder, err := did.NewIdentity(did.DefaultMethod, did.HolderKeyFragment)
	require.NoError(t, err)

	return issuer, holder
}

func cohortAttrs() map[string]interface{} {
	return map[string]interface{}{"name": DefaultCohortName}
}

func TestIssueAndValidate(t *testing.T) {
	issuer, holder := newIdentities(t)

	for _, format := range []Format{FormatEmbedded, FormatJWT} {
		t.Run(format.String(), func(t *testing.T) {
			engine := NewEngine(WithFormat(format))

			cred, err := engine.Issue(context.Background(), issuer, holder.DID(), DefaultClaimType, cohortAttrs())
			require.NoError(t, err)
			assert.Equal(t, format, cred.Format)
			assert.Equal(t, issuer.DID(), cred.Issuer)
			assert.Equal(t, holder.DID(), cred.Subject.ID)
			assert.Equal(t, DefaultCohortName, cred.Subject.CustomFields["name"])
			assert.Equal(t, []string{TypeVerifiableCredential, DefaultClaimType}, cred.Types)
			assert.True(t, strings.HasPrefix(cred.ID, "urn:uuid:"))
			assert.True(t, cred.ExpirationDate.IsZero())

			validated, err := engine.Validate(cred.Raw(), issuer.Document())
			require.NoError(t, err)
			assert.Equal(t, cred.Contents, validated.Contents)
		})
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	issuer, holder := newIdentities(t)
	engine := NewEngine()

	cred, err := engine.Issue(context.Background(), issuer, holder.DID(), DefaultClaimType, cohortAttrs())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(m jsonmap.JSONMap)
		target error
	}{
		{
			name: "subject replaced",
			mutate: func(m jsonmap.JSONMap) {
				m["credentialSubject"].(map[string]interface{})["id"] = "did:fed:0x0000000000000000000000000000000000000bad"
			},
			target: fedtrust.ErrBadSignature,
		},
		{
			name: "attribute changed",
			mutate: func(m jsonmap.JSONMap) {
				m["credentialSubject"].(map[string]interface{})["name"] = "OtherCohort"
			},
			target: fedtrust.ErrBadSignature,
		},
		{
			name:   "expiry stripped and added",
			mutate: func(m jsonmap.JSONMap) { m["expirationDate"] = "2999-01-01T00:00:00Z" },
			target: fedtrust.ErrBadSignature,
		},
		{
			name:   "issuer missing",
			mutate: func(m jsonmap.JSONMap) { delete(m, "issuer") },
			target: fedtrust.ErrMalformed,
		},
		{
			name:   "proof missing",
			mutate: func(m jsonmap.JSONMap) { delete(m, "proof") },
			target: fedtrust.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := jsonmap.Parse(cred.Raw())
			require.NoError(t, err)
			tt.mutate(m)

			raw, err := m.ToJSON()
			require.NoError(t, err)

			_, err = engine.Validate(raw, issuer.Document())
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestValidateWrongIssuerDocument(t *testing.T) {
	issuer, holder := newIdentities(t)
	engine := NewEngine()

	cred, err := engine.Issue(context.Background(), issuer, holder.DID(), DefaultClaimType, cohortAttrs())
	require.NoError(t, err)

	_, err = engine.Validate(cred.Raw(), holder.Document())
	assert.ErrorIs(t, err, fedtrust.ErrBadSignature)

	_, err = engine.Validate(cred.Raw(), nil)
	assert.ErrorIs(t, err, fedtrust.ErrBadSignature)

	impostor := *holder.Document()
	impostor.ID = issuer.DID()
	_, err = engine.Validate(cred.Raw(), &impostor)
	assert.ErrorIs(t, err, fedtrust.ErrBadSignature)
}

func TestValidateExpiry(t *testing.T) {
	issuer, holder := newIdentities(t)
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := issued

	for _, format := range []Format{FormatEmbedded, FormatJWT} {
		t.Run(format.String(), func(t *testing.T) {
			now = issued
			engine := NewEngine(WithFormat(format), WithExpiry(time.Hour), WithClock(func() time.Time { return now }))

			cred, err := engine.Issue(context.Background(), issuer, holder.DID(), DefaultClaimType, cohortAttrs())
			require.NoError(t, err)
			assert.Equal(t, issued.Add(time.Hour), cred.ExpirationDate)

			now = issued.Add(59 * time.Minute)
			_, err = engine.Validate(cred.Raw(), issuer.Document())
			assert.NoError(t, err)

			now = issued.Add(time.Hour)
			_, err = engine.Validate(cred.Raw(), issuer.Document())
			assert.ErrorIs(t, err, fedtrust.ErrExpired)
		})
	}
}

func TestValidateMalformedInput(t *testing.T) {
	issuer, _ := newIdentities(t)
	engine := NewEngine()

	for _, raw := range []string{"", "{}", "{invalid}", "a.b.c", `{"issuer": 7}`} {
		_, err := engine.Validate([]byte(raw), issuer.Document())
		assert.ErrorIs(t, err, fedtrust.ErrMalformed, "input %q", raw)
	}
}

func TestValidateJWTTampering(t *testing.T) {
	issuer, holder := newIdentities(t)
	engine := NewEngine(WithFormat(FormatJWT))

	cred, err := engine.Issue(context.Background(), issuer, holder.DID(), DefaultClaimType, cohortAttrs())
	require.NoError(t, err)

	raw := []byte(string(cred.Raw()))
	last := len(raw) - 2
	if raw[last] == 'A' {
		raw[last] = 'B'
	} else {
		raw[last] = 'A'
	}

	_, err = engine.Validate(raw, issuer.Document())
	assert.ErrorIs(t, err, fedtrust.ErrBadSignature)
}

func TestIssueErrors(t *testing.T) {
	issuer, holder := newIdentities(t)
	engine := NewEngine()

	_, err := engine.Issue(context.Background(), issuer, "alice", DefaultClaimType, nil)
	assert.ErrorIs(t, err, fedtrust.ErrIssuance)

	_, err = engine.Issue(context.Background(), issuer, holder.DID(), DefaultClaimType, map[string]interface{}{"id": "x"})
	assert.ErrorIs(t, err, fedtrust.ErrIssuance)

	_, err = engine.Issue(context.Background(), failingSigner{issuer}, holder.DID(), DefaultClaimType, nil)
	assert.ErrorIs(t, err, fedtrust.ErrIssuance)
	assert.ErrorIs(t, err, fedtrust.ErrSigning)
	assert.False(t, errors.Is(err, fedtrust.ErrPublish))
}

func TestIssueDefaultsClaimType(t *testing.T) {
	issuer, holder := newIdentities(t)

	cred, err := NewEngine(WithIDGenerator(func() string { return "urn:uuid:fixed" })).
		Issue(context.Background(), issuer, holder.DID(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:uuid:fixed", cred.ID)
	assert.Contains(t, cred.Types, DefaultClaimType)
	assert.Empty(t, cred.Subject.CustomFields)
}
