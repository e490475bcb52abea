// Package postgres keeps gzip-compressed blobs in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/blobstore"
	"github.com/pilacorp/go-fedtrust/credential/common/util"
)

// DefaultMaxBlobSize bounds the decompressed size of one blob.
const DefaultMaxBlobSize = 256 << 20

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	address    TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	size       BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// Store persists blobs in PostgreSQL.
type Store struct {
	db      *sql.DB
	clock   func() time.Time
	maxSize int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created_at.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaxBlobSize bounds the decompressed size returned by Get.
func WithMaxBlobSize(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// NewStore constructs a PostgreSQL-backed blob store.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		clock:   time.Now,
		maxSize: DefaultMaxBlobSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Migrate creates the blobs table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create blobs table: %w", err)
	}

	return nil
}

func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	address, err := blobstore.ContentAddress(data)
	if err != nil {
		return "", err
	}

	compressed, err := util.Compress(data)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO blobs (address, data, size, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING
	`
	if _, err = s.db.ExecContext(ctx, query, address, compressed, len(data), s.clock().UTC()); err != nil {
		return "", fmt.Errorf("insert blob: %w", err)
	}

	return address, nil
}

func (s *Store) Get(ctx context.Context, address string) ([]byte, error) {
	var compressed []byte

	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE address = $1`, address).Scan(&compressed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, blobstore.NotFound(address)
		}
		return nil, fmt.Errorf("%w: %w: select blob: %w", fedtrust.ErrFetch, fedtrust.ErrNetwork, err)
	}

	data, err := util.Decompress(compressed, s.maxSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fedtrust.ErrFetch, err)
	}

	if err = blobstore.Verify(address, data); err != nil {
		return nil, err
	}

	return data, nil
}
