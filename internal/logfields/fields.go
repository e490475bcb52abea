// Package logfields defines the structured log fields shared across the module.
package logfields

import (
	"go.uber.org/zap"
)

// Log Fields.
const (
	FieldCID          = "cid"
	FieldCommand      = "command"
	FieldCount        = "count"
	FieldDID          = "did"
	FieldHolder       = "holder"
	FieldRecordID     = "recordID"
	FieldRemoteAddr   = "remoteAddr"
	FieldRound        = "round"
	FieldState        = "state"
	FieldStrikes      = "strikes"
	FieldTag          = "tag"
	FieldTarget       = "target"
	FieldUserLogLevel = "userLogLevel"
)

// WithCID sets the content address field.
func WithCID(cid string) zap.Field {
	return zap.String(FieldCID, cid)
}

// WithCommand sets the Command field.
func WithCommand(command string) zap.Field {
	return zap.String(FieldCommand, command)
}

// WithCount sets the Count field.
func WithCount(count int) zap.Field {
	return zap.Int(FieldCount, count)
}

// WithDID sets the DID field.
func WithDID(did string) zap.Field {
	return zap.String(FieldDID, did)
}

// WithHolder sets the presentation holder field.
func WithHolder(holder string) zap.Field {
	return zap.String(FieldHolder, holder)
}

// WithRecordID sets the ledger record id field.
func WithRecordID(id string) zap.Field {
	return zap.String(FieldRecordID, id)
}

// WithRemoteAddr sets the peer address field.
func WithRemoteAddr(addr string) zap.Field {
	return zap.String(FieldRemoteAddr, addr)
}

// WithRound sets the training round field.
func WithRound(round int) zap.Field {
	return zap.Int(FieldRound, round)
}

// WithState sets the session state field.
func WithState(state string) zap.Field {
	return zap.String(FieldState, state)
}

// WithStrikes sets the unknown command strike counter field.
func WithStrikes(strikes int) zap.Field {
	return zap.Int(FieldStrikes, strikes)
}

// WithTag sets the ledger tag field.
func WithTag(tag string) zap.Field {
	return zap.String(FieldTag, tag)
}

// WithTarget sets the requested record count field.
func WithTarget(target int) zap.Field {
	return zap.Int(FieldTarget, target)
}

// WithUserLogLevel sets the UserLogLevel field.
func WithUserLogLevel(userLogLevel string) zap.Field {
	return zap.String(FieldUserLogLevel, userLogLevel)
}
