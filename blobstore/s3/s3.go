// Package s3 keeps blobs in an S3 bucket keyed by content address.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/blobstore"
)

const contentType = "application/octet-stream"

// DefaultMaxBlobSize bounds the bytes read back for one blob.
const DefaultMaxBlobSize = 256 << 20

type s3Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store manages blobs in S3.
type Store struct {
	s3Uploader s3Uploader
	bucket     string
	prefix     string
	maxSize    int64
}

// NewStore creates an S3 Store writing objects under prefix in bucket.
func NewStore(s3Uploader s3Uploader, bucket, prefix string) *Store {
	return &Store{
		s3Uploader: s3Uploader,
		bucket:     bucket,
		prefix:     prefix,
		maxSize:    DefaultMaxBlobSize,
	}
}

func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	address, err := blobstore.ContentAddress(data)
	if err != nil {
		return "", err
	}

	_, err = s.s3Uploader.PutObject(ctx, &s3.PutObjectInput{
		Body:        bytes.NewReader(data),
		Key:         aws.String(s.prefix + address),
		Bucket:      aws.String(s.bucket),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}

	return address, nil
}

func (s *Store) Get(ctx context.Context, address string) ([]byte, error) {
	res, err := s.s3Uploader.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + address),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, blobstore.NotFound(address)
		}

		return nil, fmt.Errorf("%w: %w: failed to get blob from S3: %w", fedtrust.ErrFetch, fedtrust.ErrNetwork, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read blob body: %w", fedtrust.ErrFetch, err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: blob %s exceeds %d bytes", fedtrust.ErrFetch, address, s.maxSize)
	}

	if err = blobstore.Verify(address, data); err != nil {
		return nil, err
	}

	return data, nil
}
