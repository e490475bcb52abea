package authz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fedtrust "github.com/pilacorp/go-fedtrust"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, []byte("issue-credential")))
	require.NoError(t, WriteFrame(&buf, nil))

	assert.Equal(t, uint32(16), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "issue-credential", string(frame))

	frame, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, frame)

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameLimits(t *testing.T) {
	t.Run("write oversized", func(t *testing.T) {
		err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1))
		assert.ErrorIs(t, err, fedtrust.ErrProtocolViolation)
	})

	t.Run("read oversized header", func(t *testing.T) {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, MaxFrameSize+1)

		_, err := ReadFrame(bytes.NewReader(header))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("truncated payload", func(t *testing.T) {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, 10)

		_, err := ReadFrame(bytes.NewReader(append(header, "short"...)))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})

	t.Run("max size accepted", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, make([]byte, MaxFrameSize)))

		frame, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Len(t, frame, MaxFrameSize)
	})
}
