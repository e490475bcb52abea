package jwt

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/did"
)

// SignDocument signs a verifiable document (VC or VP) as a compact JWT. The document is
// carried under claimKey ("vc" or "vp") next to any additional registered claims.
func SignDocument(ctx context.Context, signer did.Signer, doc jsonmap.JSONMap, claimKey string, additionalClaims map[string]interface{}) (string, error) {
	claims := jwt.MapClaims{
		claimKey: map[string]interface{}(doc),
	}
	for key, value := range additionalClaims {
		claims[key] = value
	}

	token := jwt.NewWithClaims(ES256K, claims)
	token.Header["typ"] = "JWT"
	token.Header["kid"] = signer.DID() + "#" + signer.KeyFragment()

	signed, err := token.SignedString(SigningKey{Ctx: ctx, Signer: signer})
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
