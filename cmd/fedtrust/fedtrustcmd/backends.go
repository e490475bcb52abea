package fedtrustcmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/redis/go-redis/v9"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/blobstore"
	"github.com/pilacorp/go-fedtrust/blobstore/postgres"
	s3store "github.com/pilacorp/go-fedtrust/blobstore/s3"
	"github.com/pilacorp/go-fedtrust/cmd/common"
	"github.com/pilacorp/go-fedtrust/credential/common/provider"
	"github.com/pilacorp/go-fedtrust/ledger"
	"github.com/pilacorp/go-fedtrust/ledger/kafka"
	"github.com/pilacorp/go-fedtrust/ledger/redisstream"
)

const (
	ledgerMem   = "mem"
	ledgerRedis = "redis"
	ledgerKafka = "kafka"

	blobStoreMem      = "mem"
	blobStoreS3       = "s3"
	blobStorePostgres = "postgres"
)

// cleanup releases a backend. Calls are made in reverse order of creation.
type cleanup func()

type cleanups []cleanup

func (c *cleanups) add(f cleanup) {
	*c = append(*c, f)
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// createResolver builds the DID resolver, fronted by a Redis cache when redisClient is set.
func createResolver(p resolverParameters, redisClient *redis.Client) provider.Resolver {
	var r provider.Resolver
	if p.resolverURL != "" {
		r = provider.NewHTTPResolver(p.resolverURL)
	} else {
		r = provider.NewDirResolver(p.docsDir)
	}

	if redisClient != nil {
		r = provider.NewCachedResolver(r, redisClient)
	}

	return r
}

func createRedisClient(ctx context.Context, url string, c *cleanups) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	client, err := common.NewRedisClient(ctx, url)
	if err != nil {
		return nil, err
	}

	c.add(func() { _ = client.Close() })

	return client, nil
}

func createLedger(ctx context.Context, p ledgerParameters, c *cleanups) (ledger.Client, error) {
	switch p.ledgerType {
	case ledgerRedis:
		client, err := createRedisClient(ctx, p.url, c)
		if err != nil {
			return nil, err
		}

		return redisstream.New(client), nil
	case ledgerKafka:
		l, err := kafka.New(strings.Split(p.url, ","), p.topic)
		if err != nil {
			return nil, err
		}

		c.add(l.Close)

		if err = l.EnsureTopic(ctx, 1, 1); err != nil {
			return nil, err
		}

		return l, nil
	case ledgerMem:
		logger.Warn("Using an in-memory ledger. Contributions are not shared with other processes.")

		return ledger.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", p.ledgerType)
	}
}

func createBlobStore(ctx context.Context, p blobStoreParameters, c *cleanups) (blobstore.Store, error) {
	switch p.storeType {
	case blobStoreS3:
		return createS3Store(ctx, p)
	case blobStorePostgres:
		db, err := sql.Open("pgx", p.url)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		c.add(func() { _ = db.Close() })

		if err = db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}

		store := postgres.NewStore(db)
		if err = store.Migrate(ctx); err != nil {
			return nil, err
		}

		return store, nil
	case blobStoreMem:
		logger.Warn("Using an in-memory blob store. Blobs are not shared with other processes.")

		return blobstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", p.storeType)
	}
}

func createS3Store(ctx context.Context, p blobStoreParameters) (blobstore.Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if p.region != "" {
		opts = append(opts, awsconfig.WithRegion(p.region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if p.url != "" {
			o.EndpointResolver = awss3.EndpointResolverFromURL(p.url)
			o.UsePathStyle = true
		}
	})

	logger.Info("Using S3 blob store", log.WithURL("s3://"+p.bucket+"/"+p.prefix))

	return s3store.NewStore(client, p.bucket, p.prefix), nil
}
