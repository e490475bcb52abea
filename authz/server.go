// Package authz implements the authorization session: a framed TCP exchange in which a
// participant obtains a cohort credential and proves possession of it.
package authz

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/trustbloc/logutil-go/pkg/log"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/challenge"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
	"github.com/pilacorp/go-fedtrust/metrics"
)

var logger = log.New("authz")

const (
	// DefaultMaxStrikes is the number of consecutive unknown commands tolerated.
	DefaultMaxStrikes = 10
	// DefaultIdleTimeout bounds every read and write on a session.
	DefaultIdleTimeout = 2 * time.Minute

	acceptRetryInitial = 5 * time.Millisecond
	acceptRetryMax     = time.Second
)

// ServerOpt configures a Server.
type ServerOpt func(*Server)

// WithMaxStrikes sets how many consecutive unknown commands close a session.
func WithMaxStrikes(n int) ServerOpt {
	return func(s *Server) {
		if n > 0 {
			s.maxStrikes = n
		}
	}
}

// WithIdleTimeout sets the per-frame deadline. Zero disables deadlines.
func WithIdleTimeout(d time.Duration) ServerOpt {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithClaim sets the claim type and subject attributes of issued credentials.
func WithClaim(claimType string, attrs map[string]interface{}) ServerOpt {
	return func(s *Server) {
		s.claimType = claimType
		s.attrs = attrs
	}
}

// WithRoster records admitted holders in roster instead of a private one.
func WithRoster(roster *Roster) ServerOpt {
	return func(s *Server) {
		if roster != nil {
			s.roster = roster
		}
	}
}

// WithMetrics counts sessions by how they ended.
func WithMetrics(m *metrics.Metrics) ServerOpt {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server accepts authorization sessions on behalf of a cohort issuer.
type Server struct {
	issuer      did.Signer
	credentials *vc.Engine
	challenges  *challenge.Engine
	roster      *Roster
	metrics     *metrics.Metrics

	claimType   string
	attrs       map[string]interface{}
	maxStrikes  int
	idleTimeout time.Duration

	wg sync.WaitGroup
}

func NewServer(issuer did.Signer, credentials *vc.Engine, challenges *challenge.Engine, opts ...ServerOpt) *Server {
	s := &Server{
		issuer:      issuer,
		credentials: credentials,
		challenges:  challenges,
		roster:      NewRoster(),
		claimType:   vc.DefaultClaimType,
		attrs:       map[string]interface{}{"name": vc.DefaultCohortName},
		maxStrikes:  DefaultMaxStrikes,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Roster returns the holders admitted so far.
func (s *Server) Roster() *Roster {
	return s.roster
}

// Serve accepts connections until ctx is cancelled or the listener is closed. Other
// accept failures are retried with backoff. Open sessions are closed on cancellation
// and Serve returns once they have all finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	logger.Infoc(ctx, "Authorization server listening", log.WithURL(ln.Addr().String()),
		logfields.WithDID(s.issuer.DID()))

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = acceptRetryInitial
	retry.MaxInterval = acceptRetryMax
	retry.MaxElapsedTime = 0
	retry.Reset()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				delay := retry.NextBackOff()
				logger.Warnc(ctx, "Accept failed, retrying", log.WithError(err), log.WithDuration(delay))

				select {
				case <-ctx.Done():
				case <-time.After(delay):
				}

				continue
			}

			s.wg.Wait()

			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		retry.Reset()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, nc)
		}()
	}
}

// ServeConn runs one session on nc and closes it afterwards.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) {
	defer nc.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = nc.Close()
	})
	defer stop()

	remote := logfields.WithRemoteAddr(nc.RemoteAddr().String())
	logger.Debugc(ctx, "Session opened", remote)

	sess := &session{
		srv:  s,
		conn: &conn{Conn: nc, timeout: s.idleTimeout},
	}

	err := sess.run(ctx)

	reason := terminationReason(ctx, err)
	s.metrics.IncSession(reason)

	if reason == "error" {
		logger.Warnc(ctx, "Session failed", remote, log.WithError(err))
		return
	}

	logger.Debugc(ctx, "Session closed", remote, logfields.WithState(reason))
}

func terminationReason(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "closed"
	case ctx.Err() != nil:
		return "shutdown"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return "disconnected"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "idle"
	case errors.Is(err, fedtrust.ErrProtocolViolation):
		return "violation"
	}

	if _, ok := fedtrust.KindOf(err); ok {
		return "rejected"
	}

	return "error"
}
