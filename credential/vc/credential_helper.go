package vc

import (
	"fmt"
	"maps"
	"time"

	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/credential/common/schema"
	"github.com/pilacorp/go-fedtrust/credential/common/util"
)

var credentialSchema = schema.MustValidator(schema.CredentialSchema)

// serializeContents converts Contents into the credential's JSON document.
func serializeContents(vcc *Contents) jsonmap.JSONMap {
	subject := make(jsonmap.JSONMap, len(vcc.Subject.CustomFields)+1)
	maps.Copy(subject, vcc.Subject.CustomFields)
	subject["id"] = vcc.Subject.ID

	m := jsonmap.JSONMap{
		"@context":          util.SerializeTypes(vcc.Context),
		"id":                vcc.ID,
		"type":              util.SerializeTypes(vcc.Types),
		"issuer":            vcc.Issuer,
		"issuanceDate":      vcc.IssuanceDate.UTC().Format(time.RFC3339),
		"credentialSubject": map[string]interface{}(subject),
	}
	if !vcc.ExpirationDate.IsZero() {
		m["expirationDate"] = vcc.ExpirationDate.UTC().Format(time.RFC3339)
	}

	return m
}

// parseContents reads Contents back from a schema-checked document.
func parseContents(m jsonmap.JSONMap) (*Contents, error) {
	contents := &Contents{}

	var ok bool
	if contents.Context, ok = util.StringSlice(m["@context"]); !ok {
		return nil, fmt.Errorf("@context must be an array of strings")
	}
	if contents.Types, ok = util.StringSlice(m["type"]); !ok {
		return nil, fmt.Errorf("type must be an array of strings")
	}

	contents.ID, _ = m["id"].(string)
	contents.Issuer, _ = m["issuer"].(string)

	if err := parseDates(m, contents); err != nil {
		return nil, err
	}

	subject, ok := m["credentialSubject"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("credentialSubject must be an object")
	}
	contents.Subject.ID, _ = subject["id"].(string)
	contents.Subject.CustomFields = make(map[string]interface{}, len(subject))
	for k, v := range subject {
		if k != "id" {
			contents.Subject.CustomFields[k] = v
		}
	}

	return contents, nil
}

func parseDates(m jsonmap.JSONMap, contents *Contents) error {
	issued, _ := m["issuanceDate"].(string)
	t, err := time.Parse(time.RFC3339, issued)
	if err != nil {
		return fmt.Errorf("failed to parse issuanceDate: %w", err)
	}
	contents.IssuanceDate = t

	if expires, ok := m["expirationDate"].(string); ok {
		t, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			return fmt.Errorf("failed to parse expirationDate: %w", err)
		}
		contents.ExpirationDate = t
	}

	return nil
}
