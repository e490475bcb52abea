// Package did models decentralized identifiers, their documents and the local identities
// that sign on their behalf.
package did

import (
	"fmt"
	"regexp"
	"strings"
)

var didRegexp = regexp.MustCompile(`^did:([a-z0-9]+):([A-Za-z0-9._:%-]+)$`)

// Parse splits a DID into its method and method-specific identifier.
func Parse(did string) (method, id string, err error) {
	m := didRegexp.FindStringSubmatch(did)
	if m == nil {
		return "", "", fmt.Errorf("invalid DID syntax: %q", did)
	}

	return m[1], m[2], nil
}

// IsValid reports whether s is a syntactically valid DID.
func IsValid(s string) bool {
	return didRegexp.MatchString(s)
}

// SplitVerificationMethod splits a DID URL of the form did:...#fragment.
func SplitVerificationMethod(verificationMethod string) (did, fragment string, err error) {
	didPart, fragment, found := strings.Cut(verificationMethod, "#")
	if !found || fragment == "" {
		return "", "", fmt.Errorf("invalid verification method URL: %s", verificationMethod)
	}
	if !IsValid(didPart) {
		return "", "", fmt.Errorf("extracted DID '%s' is invalid", didPart)
	}

	return didPart, fragment, nil
}
