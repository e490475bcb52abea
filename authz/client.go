package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/credential/vp"
	"github.com/pilacorp/go-fedtrust/did"
)

// ErrRejected is returned when the verifier closes the session instead of admitting the holder.
var ErrRejected = errors.New("presentation rejected by verifier")

// ClientOpt configures a Client.
type ClientOpt func(*Client)

// WithTimeout sets the per-frame deadline used by the client.
func WithTimeout(d time.Duration) ClientOpt {
	return func(c *Client) {
		c.conn.timeout = d
	}
}

// Client is the requester side of an authorization session.
type Client struct {
	conn *conn
}

// Dial connects to an authorization server at addr.
func Dial(ctx context.Context, addr string, opts ...ClientOpt) (*Client, error) {
	var d net.Dialer

	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", fedtrust.ErrNetwork, addr, err)
	}

	return NewClient(nc, opts...), nil
}

// NewClient runs the requester protocol over an established connection.
func NewClient(nc net.Conn, opts ...ClientOpt) *Client {
	c := &Client{conn: &conn{Conn: nc, timeout: DefaultIdleTimeout}}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestCredential asks the issuer for a credential naming subject.
func (c *Client) RequestCredential(ctx context.Context, subject string) ([]byte, error) {
	defer c.watch(ctx)()

	if err := c.conn.writeString(CmdIssueCredential); err != nil {
		return nil, err
	}
	if err := c.conn.writeString(subject); err != nil {
		return nil, err
	}

	raw, err := c.conn.read()
	if err != nil {
		if isClosed(err) {
			return nil, fmt.Errorf("%w: issuer closed the session", fedtrust.ErrIssuance)
		}
		return nil, err
	}

	if _, err = vc.Parse(raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// Authenticate answers the verifier's challenge with a presentation of rawVC signed by
// holder, and returns the verifier's DID on success.
func (c *Client) Authenticate(ctx context.Context, holder did.Signer, rawVC []byte) (string, error) {
	defer c.watch(ctx)()

	if err := c.conn.writeString(CmdVerifyPresentation); err != nil {
		return "", err
	}

	nonce, err := c.conn.read()
	if err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	rawExpiry, err := c.conn.read()
	if err != nil {
		return "", fmt.Errorf("read expiry: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, strings.TrimSpace(string(rawExpiry)))
	if err != nil {
		return "", fmt.Errorf("%w: invalid challenge expiry: %v", fedtrust.ErrProtocolViolation, err)
	}

	if err = c.conn.writeString(Ack); err != nil {
		return "", err
	}

	presentation, err := vp.Create(ctx, holder, rawVC, strings.TrimSpace(string(nonce)), expiry)
	if err != nil {
		return "", err
	}

	if err = c.conn.write(presentation); err != nil {
		return "", err
	}

	reply, err := c.conn.read()
	if err != nil {
		if isClosed(err) {
			return "", ErrRejected
		}
		return "", err
	}

	verifier := strings.TrimSpace(string(reply))
	if !did.IsValid(verifier) {
		return "", fmt.Errorf("%w: verifier replied with %q", fedtrust.ErrProtocolViolation, verifier)
	}

	return verifier, nil
}

// Close ends the session politely and closes the connection.
func (c *Client) Close() error {
	werr := c.conn.writeString(CmdClose)
	cerr := c.conn.Close()

	if cerr != nil {
		return cerr
	}
	if werr != nil && !isClosed(werr) {
		return werr
	}

	return nil
}

// watch aborts blocked reads and writes when ctx is done.
func (c *Client) watch(ctx context.Context) func() {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})

	return func() { stop() }
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
