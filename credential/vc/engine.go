package vc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/dto"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/credential/common/jwt"
	"github.com/pilacorp/go-fedtrust/credential/common/processor"
	"github.com/pilacorp/go-fedtrust/did"
)

// EngineOpt configures an Engine.
type EngineOpt func(*Engine)

// WithExpiry makes issued credentials expire ttl after issuance. Credentials never
// expire by default.
func WithExpiry(ttl time.Duration) EngineOpt {
	return func(e *Engine) {
		e.ttl = ttl
	}
}

// WithFormat selects the serialization of issued credentials.
func WithFormat(format Format) EngineOpt {
	return func(e *Engine) {
		e.format = format
	}
}

// WithClock replaces time.Now, for issuance dates and expiry checks.
func WithClock(now func() time.Time) EngineOpt {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the urn:uuid credential id generator.
func WithIDGenerator(gen func() string) EngineOpt {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// Engine issues credentials and validates them against an issuer document.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	ttl    time.Duration
	format Format
	now    func() time.Time
	newID  func() string
}

// NewEngine creates a credential engine.
func NewEngine(opts ...EngineOpt) *Engine {
	e := &Engine{
		format: FormatEmbedded,
		now:    time.Now,
		newID:  func() string { return "urn:uuid:" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Issue builds a credential asserting claimType about subject, with attrs as subject
// attributes, and signs it with the issuer's credential key.
func (e *Engine) Issue(ctx context.Context, issuer did.Signer, subject, claimType string, attrs map[string]interface{}) (*Credential, error) {
	if !did.IsValid(subject) {
		return nil, fmt.Errorf("%w: invalid subject DID %q", fedtrust.ErrIssuance, subject)
	}
	if _, ok := attrs["id"]; ok {
		return nil, fmt.Errorf("%w: subject attribute \"id\" is reserved", fedtrust.ErrIssuance)
	}
	if claimType == "" {
		claimType = DefaultClaimType
	}

	issued := e.now().UTC().Truncate(time.Second)
	contents := Contents{
		Context:      []string{processor.ContextURL},
		ID:           e.newID(),
		Types:        []string{TypeVerifiableCredential, claimType},
		Issuer:       issuer.DID(),
		IssuanceDate: issued,
		Subject:      Subject{ID: subject, CustomFields: attrs},
	}
	if e.ttl > 0 {
		contents.ExpirationDate = issued.Add(e.ttl)
	}

	doc := serializeContents(&contents)

	raw, err := e.sign(ctx, issuer, doc, issued)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fedtrust.ErrIssuance, err)
	}

	cred, err := e.Validate(raw, issuer.Document())
	if err != nil {
		return nil, fmt.Errorf("%w: issued credential does not validate: %w", fedtrust.ErrIssuance, err)
	}

	return cred, nil
}

func (e *Engine) sign(ctx context.Context, issuer did.Signer, doc jsonmap.JSONMap, issued time.Time) ([]byte, error) {
	switch e.format {
	case FormatJWT:
		claims := map[string]interface{}{
			"iss": doc["issuer"],
			"sub": doc["credentialSubject"].(map[string]interface{})["id"],
			"jti": doc["id"],
			"nbf": issued.Unix(),
		}
		if exp, ok := doc["expirationDate"].(string); ok {
			t, _ := time.Parse(time.RFC3339, exp)
			claims["exp"] = t.Unix()
		}

		token, err := jwt.SignDocument(ctx, issuer, doc, jwtClaimKey, claims)
		if err != nil {
			return nil, err
		}

		return []byte(token), nil
	default:
		if err := doc.AddProof(ctx, issuer, jsonmap.ProofOptions{Purpose: dto.PurposeAssertion, Created: issued}); err != nil {
			return nil, err
		}

		return doc.ToJSON()
	}
}

// Validate checks structure, issuer, signature and expiry, in that order, stopping at
// the first failure. The result is a *fedtrust.ValidationError of kind Malformed,
// BadSignature or Expired.
func (e *Engine) Validate(raw []byte, issuerDoc *did.Document) (*Credential, error) {
	cred, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if issuerDoc == nil || cred.Issuer != issuerDoc.ID {
		return nil, fedtrust.NewValidationError(fedtrust.BadSignature, "credential issuer %s does not match issuer document", cred.Issuer)
	}

	switch cred.Format {
	case FormatJWT:
		if _, err := jwt.VerifyDocument(string(raw), jwtClaimKey, issuerDoc); err != nil {
			return nil, err
		}
	default:
		proof, err := cred.doc.VerifyProof(issuerDoc)
		if err != nil {
			return nil, err
		}
		if proof.ProofPurpose != dto.PurposeAssertion {
			return nil, fedtrust.NewValidationError(fedtrust.BadSignature, "credential proof purpose is %s", proof.ProofPurpose)
		}
	}

	if !cred.ExpirationDate.IsZero() && !e.now().Before(cred.ExpirationDate) {
		return nil, fedtrust.NewValidationError(fedtrust.Expired, "credential expired at %s", cred.ExpirationDate.Format(time.RFC3339))
	}

	return cred, nil
}
