package authz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
)

// MaxFrameSize bounds a single frame payload.
const MaxFrameSize = 1 << 20

const headerSize = 4

// ErrFrameTooLarge is returned when a peer announces a frame above MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds %d bytes", fedtrust.ErrProtocolViolation, MaxFrameSize)

// WriteFrame writes payload prefixed with its big-endian uint32 length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return payload, nil
}

// conn applies a fresh deadline before every read and write.
type conn struct {
	net.Conn
	timeout time.Duration
}

func (c *conn) read() ([]byte, error) {
	if c.timeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}

	return ReadFrame(c.Conn)
}

func (c *conn) write(payload []byte) error {
	if c.timeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}

	return WriteFrame(c.Conn, payload)
}

func (c *conn) writeString(s string) error {
	return c.write([]byte(s))
}
