// Package vp builds and parses the challenge-bound presentations a holder uses to
// authenticate with a credential.
package vp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/dto"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/credential/common/jwt"
	"github.com/pilacorp/go-fedtrust/credential/common/processor"
	"github.com/pilacorp/go-fedtrust/credential/common/schema"
	"github.com/pilacorp/go-fedtrust/credential/common/util"
	"github.com/pilacorp/go-fedtrust/did"
)

// TypeVerifiablePresentation is the type every presentation carries.
const TypeVerifiablePresentation = "VerifiablePresentation"

var presentationSchema = schema.MustValidator(schema.PresentationSchema)

// Presentation is a parsed presentation. Its proof has not been verified.
type Presentation struct {
	Holder      string
	Credentials [][]byte
	Proof       dto.Proof

	doc jsonmap.JSONMap
}

// Create wraps rawVC in a presentation signed by holder and bound to nonce and expiry.
func Create(ctx context.Context, holder did.Signer, rawVC []byte, nonce string, expiry time.Time) ([]byte, error) {
	var credential interface{}
	if jwt.IsJWT(rawVC) {
		credential = string(rawVC)
	} else {
		m, err := jsonmap.Parse(rawVC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credential: %w", err)
		}
		credential = map[string]interface{}(m)
	}

	doc := jsonmap.JSONMap{
		"@context":             util.SerializeTypes([]string{processor.ContextURL}),
		"type":                 util.SerializeTypes([]string{TypeVerifiablePresentation}),
		"holder":               holder.DID(),
		"verifiableCredential": []interface{}{credential},
	}

	err := doc.AddProof(ctx, holder, jsonmap.ProofOptions{
		Purpose:   dto.PurposeAuthentication,
		Challenge: nonce,
		Expires:   expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign presentation: %w", err)
	}

	return doc.ToJSON()
}

// Parse parses a presentation. Structural problems are reported as Malformed.
func Parse(raw []byte) (*Presentation, error) {
	doc, err := jsonmap.Parse(raw)
	if err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "failed to parse presentation: %w", err)
	}

	if err := presentationSchema.Validate(doc); err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}

	proof, err := doc.Proof()
	if err != nil {
		return nil, err
	}

	p := &Presentation{Proof: proof, doc: doc}
	p.Holder, _ = doc["holder"].(string)

	entries, _ := doc["verifiableCredential"].([]interface{})
	for i, entry := range entries {
		switch c := entry.(type) {
		case string:
			p.Credentials = append(p.Credentials, []byte(c))
		case map[string]interface{}:
			b, err := json.Marshal(c)
			if err != nil {
				return nil, fedtrust.NewValidationError(fedtrust.Malformed, "credential %d: %w", i, err)
			}
			p.Credentials = append(p.Credentials, b)
		default:
			return nil, fedtrust.NewValidationError(fedtrust.Malformed, "credential %d has unsupported type %T", i, entry)
		}
	}

	return p, nil
}

// Verify checks the presentation signature against the holder's document.
func (p *Presentation) Verify(holderDoc *did.Document) error {
	if holderDoc == nil || holderDoc.ID != p.Holder {
		return fedtrust.NewValidationError(fedtrust.BadSignature, "holder document does not match %s", p.Holder)
	}

	proof, err := p.doc.VerifyProof(holderDoc)
	if err != nil {
		return err
	}
	if proof.ProofPurpose != dto.PurposeAuthentication {
		return fedtrust.NewValidationError(fedtrust.BadSignature, "presentation proof purpose is %s", proof.ProofPurpose)
	}

	return nil
}

// Expires returns the expiry bound into the proof.
func (p *Presentation) Expires() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, p.Proof.Expires)
	if err != nil {
		return time.Time{}, fedtrust.NewValidationError(fedtrust.Malformed, "presentation expiry: %w", err)
	}

	return t, nil
}
