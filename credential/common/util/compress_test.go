package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompress(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple string", input: []byte("Hello, World!")},
		{name: "empty data", input: []byte{}},
		{name: "large data", input: bytes.Repeat([]byte("model weights "), 1000)},
		{name: "unicode data", input: []byte("Hello 世界! Привет! こんにちは!")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Compress(tt.input)
			require.NoError(t, err)

			out, err := Decompress(compressed, 1<<20)
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), len(out))
			assert.True(t, bytes.Equal(tt.input, out))
		})
	}
}

func TestDecompressLimit(t *testing.T) {
	compressed, err := Compress(bytes.Repeat([]byte{0}, 4096))
	require.NoError(t, err)

	_, err = Decompress(compressed, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)

	out, err := Decompress(compressed, 4096)
	require.NoError(t, err)
	assert.Len(t, out, 4096)
}

func TestDecompressInvalid(t *testing.T) {
	_, err := Decompress([]byte("not gzip"), 1024)
	assert.ErrorContains(t, err, "failed to decompress")
}
