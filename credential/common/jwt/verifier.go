package jwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/did"
)

// IsJWT reports whether raw looks like a compact JWS.
func IsJWT(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return !strings.HasPrefix(s, "{") && strings.Count(s, ".") == 2
}

// GetDocumentFromJWT extracts the document under claimKey without verifying the signature.
func GetDocumentFromJWT(tokenString, claimKey string) (jsonmap.JSONMap, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "failed to parse JWT: %w", err)
	}

	return documentClaim(claims, claimKey)
}

// VerifyDocument verifies the JWT against doc and returns the embedded document.
// Registered time claims are not enforced here; callers check the document's own dates.
func VerifyDocument(tokenString, claimKey string, doc *did.Document) (jsonmap.JSONMap, error) {
	if doc == nil {
		return nil, fedtrust.NewValidationError(fedtrust.BadSignature, "no DID document to verify against")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{ES256K.Alg()}), jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}

	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid not found in header")
		}

		controller, _, err := did.SplitVerificationMethod(kid)
		if err != nil {
			return nil, err
		}
		if controller != doc.ID {
			return nil, fmt.Errorf("token signed by %s, expected %s", controller, doc.ID)
		}

		return doc.PublicKey(kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
		}

		return nil, fedtrust.NewValidationError(fedtrust.BadSignature, "%w", err)
	}

	return documentClaim(claims, claimKey)
}

func documentClaim(claims jwt.MapClaims, claimKey string) (jsonmap.JSONMap, error) {
	documentData, ok := claims[claimKey]
	if !ok {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "document type %s not found in JWT", claimKey)
	}

	documentMap, ok := documentData.(map[string]interface{})
	if !ok {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "document is not a valid JSON object")
	}

	return jsonmap.JSONMap(documentMap), nil
}
