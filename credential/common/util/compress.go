package util

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned when decompressed data exceeds the caller's limit.
var ErrTooLarge = errors.New("decompressed data exceeds limit")

// Compress gzips data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress gunzips data, refusing to produce more than limit bytes.
func Decompress(data []byte, limit int64) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	defer gz.Close()

	out, err := io.ReadAll(io.LimitReader(gz, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}

	if int64(len(out)) > limit {
		return nil, ErrTooLarge
	}

	return out, nil
}
