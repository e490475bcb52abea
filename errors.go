// Package fedtrust holds the error taxonomy shared by every component of the
// federated-learning trust protocol.
package fedtrust

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityResolution is returned when a DID cannot be resolved to a document.
	ErrIdentityResolution = errors.New("identity resolution failed")
	// ErrNotFound marks a DID that the resolver does not know about.
	ErrNotFound = errors.New("not found")
	// ErrNetwork marks a resolver, ledger or blob store transport failure.
	ErrNetwork = errors.New("network error")
	// ErrSigning is returned when an identity provider cannot produce a signature.
	ErrSigning = errors.New("signing failed")
	// ErrIssuance is returned when a credential cannot be issued.
	ErrIssuance = errors.New("credential issuance failed")
	// ErrPublish is returned when a ledger record or blob could not be stored.
	ErrPublish = errors.New("publish failed")
	// ErrFetch is returned when a blob or ledger query could not be served.
	ErrFetch = errors.New("fetch failed")
	// ErrProtocolViolation is returned when a peer breaks the session protocol.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrPollIncomplete is returned by a poll that ran out of time before collecting
	// the requested number of records.
	ErrPollIncomplete = errors.New("poll incomplete")
)

// Kind classifies a ValidationError.
type Kind int

const (
	BadSignature Kind = iota + 1
	Expired
	Malformed
	MultiCredentialUnsupported
	SubjectMismatch
	ChallengeMismatch
)

var (
	ErrBadSignature               = errors.New("bad signature")
	ErrExpired                    = errors.New("expired")
	ErrMalformed                  = errors.New("malformed")
	ErrMultiCredentialUnsupported = errors.New("multiple credentials unsupported")
	ErrSubjectMismatch            = errors.New("subject mismatch")
	ErrChallengeMismatch          = errors.New("challenge mismatch")
)

var kindSentinels = map[Kind]error{
	BadSignature:               ErrBadSignature,
	Expired:                    ErrExpired,
	Malformed:                  ErrMalformed,
	MultiCredentialUnsupported: ErrMultiCredentialUnsupported,
	SubjectMismatch:            ErrSubjectMismatch,
	ChallengeMismatch:          ErrChallengeMismatch,
}

func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// ValidationError reports why a credential, presentation or contribution was rejected.
type ValidationError struct {
	Kind Kind
	Err  error
}

// NewValidationError builds a ValidationError of the given kind with a formatted cause.
func NewValidationError(kind Kind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "validation failed: " + e.Kind.String()
	}

	return fmt.Sprintf("validation failed: %s: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a ValidationError against the sentinel of its kind.
func (e *ValidationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of the first ValidationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}

	return 0, false
}
