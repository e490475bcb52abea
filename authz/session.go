package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
)

// State is the position of a session in the authorization protocol.
type State int

const (
	AwaitingCommand State = iota
	IssuingCredential
	VerifyingPresentation
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingCommand:
		return "awaiting-command"
	case IssuingCredential:
		return "issuing-credential"
	case VerifyingPresentation:
		return "verifying-presentation"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Command tokens understood by the server.
const (
	CmdIssueCredential    = "issue-credential"
	CmdVerifyPresentation = "verify-presentation"
	CmdClose              = "close"

	// Ack is sent by the requester once it holds the challenge.
	Ack = "ack"
)

var commandAliases = map[string]string{
	CmdIssueCredential:    CmdIssueCredential,
	CmdVerifyPresentation: CmdVerifyPresentation,
	CmdClose:              CmdClose,
	"vc":                  CmdIssueCredential,
	"vp":                  CmdVerifyPresentation,
	"shutdown":            CmdClose,
}

func parseCommand(frame []byte) (string, bool) {
	cmd, ok := commandAliases[strings.TrimSpace(string(frame))]
	return cmd, ok
}

// session serves one connection. It only reads shared server state.
type session struct {
	srv     *Server
	conn    *conn
	state   State
	strikes int
}

func (s *session) run(ctx context.Context) error {
	for s.state != Closed {
		frame, err := s.conn.read()
		if err != nil {
			s.state = Closed
			return err
		}

		cmd, ok := parseCommand(frame)
		if !ok {
			s.strikes++
			logger.Debugc(ctx, "Unknown command", logfields.WithStrikes(s.strikes))

			if s.strikes >= s.srv.maxStrikes {
				s.state = Closed
				return fmt.Errorf("%w: %d consecutive unknown commands", fedtrust.ErrProtocolViolation, s.strikes)
			}

			continue
		}

		s.strikes = 0

		switch cmd {
		case CmdClose:
			s.state = Closed
			return nil
		case CmdIssueCredential:
			s.state = IssuingCredential
			err = s.issueCredential(ctx)
		case CmdVerifyPresentation:
			s.state = VerifyingPresentation
			err = s.verifyPresentation(ctx)
		}

		if err != nil {
			logger.Debugc(ctx, "Session step failed", logfields.WithState(s.state.String()), log.WithError(err))
			s.state = Closed
			return err
		}

		s.state = AwaitingCommand
	}

	return nil
}

func (s *session) issueCredential(ctx context.Context) error {
	frame, err := s.conn.read()
	if err != nil {
		return fmt.Errorf("read subject: %w", err)
	}

	subject := strings.TrimSpace(string(frame))

	cred, err := s.srv.credentials.Issue(ctx, s.srv.issuer, subject, s.srv.claimType, s.srv.attrs)
	if err != nil {
		return err
	}

	if err = s.conn.write(cred.Raw()); err != nil {
		return err
	}

	s.srv.metrics.IncCredentialIssued()
	logger.Infoc(ctx, "Credential issued", logfields.WithHolder(subject))

	return nil
}

func (s *session) verifyPresentation(ctx context.Context) error {
	ch, err := s.srv.challenges.CreateChallenge(ctx)
	if err != nil {
		return err
	}

	if err = s.conn.writeString(ch.Nonce); err != nil {
		return err
	}
	if err = s.conn.writeString(ch.Expiry.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	ack, err := s.conn.read()
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if strings.TrimSpace(string(ack)) != Ack {
		return fmt.Errorf("%w: expected %q", fedtrust.ErrProtocolViolation, Ack)
	}

	raw, err := s.conn.read()
	if err != nil {
		return fmt.Errorf("read presentation: %w", err)
	}

	holder, err := s.srv.challenges.VerifyPresentation(ctx, raw, s.srv.issuer.Document(), ch)
	if err != nil {
		s.srv.metrics.IncPresentation(outcome(err))
		logger.Warnc(ctx, "Presentation rejected", log.WithError(err))

		return err
	}

	s.srv.roster.Admit(holder)
	s.srv.metrics.IncPresentation("accepted")
	logger.Infoc(ctx, "Presentation accepted", logfields.WithHolder(holder))

	return s.conn.writeString(s.srv.issuer.DID())
}

func outcome(err error) string {
	if kind, ok := fedtrust.KindOf(err); ok {
		return kind.String()
	}

	return "error"
}
