package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/tendant/college-magazine/pkg/magazine"
	"github.com/tendant/college-magazine/pkg/magazine/repo/memory"
	mongorepo "github.com/tendant/college-magazine/pkg/magazine/repo/mongo"
	repopg "github.com/tendant/college-magazine/pkg/magazine/repo/postgres"
	"github.com/tendant/college-magazine/pkg/magazine/repo/postgres/migrations"
	fsstorage "github.com/tendant/college-magazine/pkg/magazine/storage/fs"
	"github.com/tendant/college-magazine/pkg/magazine/storage/gridfs"
	memorystorage "github.com/tendant/college-magazine/pkg/magazine/storage/memory"
	s3storage "github.com/tendant/college-magazine/pkg/magazine/storage/s3"
)

// Runtime is a built service together with the connections it owns.
type Runtime struct {
	Service *magazine.Service
	Config  *Config

	closers []func()
}

// Close releases pools and clients in reverse order of creation.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Build connects the configured backends and creates the service. Postgres
// migrations are applied before the service is created.
func (c *Config) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: c}

	records, mongoDB, err := c.buildRecordStore(ctx, rt, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build record store: %w", err)
	}

	storeKind, blobs, err := c.buildBlobStore(ctx, mongoDB)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}

	svc, err := magazine.New(ctx,
		magazine.WithRecordStore(records),
		magazine.WithBlobStore(storeKind, blobs),
		magazine.WithLogger(logger),
		magazine.WithPasswordCost(c.PasswordCost),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	logger.Info("service configured", "database", c.mustDatabaseKind(), "storage", storeKind)
	return rt, nil
}

func (c *Config) mustDatabaseKind() string {
	kind, _ := c.DatabaseKind()
	return kind
}

func (c *Config) buildRecordStore(ctx context.Context, rt *Runtime, logger *slog.Logger) (magazine.RecordStore, *mongodriver.Database, error) {
	kind, err := c.DatabaseKind()
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case DatabaseMemory:
		return memory.New(), nil, nil

	case DatabasePostgres:
		pool, err := NewPostgresPool(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := migrations.Up(pool); err != nil {
			return nil, nil, err
		}
		logger.Debug("postgres migrations applied")
		return repopg.NewWithPool(pool), nil, nil

	case DatabaseMongo:
		client, err := mongorepo.Connect(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect mongodb", "error", err)
			}
		})
		db := client.Database(c.DatabaseName)
		return mongorepo.New(db), db, nil
	}
	return nil, nil, fmt.Errorf("unsupported database type: %s", kind)
}

func (c *Config) buildBlobStore(ctx context.Context, mongoDB *mongodriver.Database) (string, magazine.BlobStore, error) {
	kind, location, err := c.StorageLocation()
	if err != nil {
		return "", nil, err
	}

	switch kind {
	case StorageMemory:
		return kind, memorystorage.New(), nil

	case StorageFS:
		store, err := fsstorage.New(fsstorage.Config{BaseDir: location})
		return kind, store, err

	case StorageS3:
		bucket, prefix, _ := strings.Cut(location, "/")
		store, err := s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 bucket,
			Prefix:                 prefix,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
		return kind, store, err

	case StorageGridFS:
		if mongoDB == nil {
			return "", nil, errors.New("gridfs storage requires a mongodb DATABASE_URL")
		}
		store, err := gridfs.New(mongoDB, location)
		return kind, store, err
	}
	return "", nil, fmt.Errorf("unsupported storage type: %s", kind)
}

// NewPostgresPool opens and pings a pgx pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// MigrationStatus applies pending Postgres migrations and reports the
// resulting and latest versions.
func (c *Config) MigrationStatus(ctx context.Context, apply bool) (current, latest uint, err error) {
	kind, err := c.DatabaseKind()
	if err != nil {
		return 0, 0, err
	}
	if kind != DatabasePostgres {
		return 0, 0, fmt.Errorf("migrations only apply to postgres, DATABASE_URL selects %s", kind)
	}

	pool, err := NewPostgresPool(ctx, c.DatabaseURL)
	if err != nil {
		return 0, 0, err
	}
	defer pool.Close()

	if apply {
		if err := migrations.Up(pool); err != nil {
			return 0, 0, err
		}
	}
	current, latest, dirty, err := migrations.Status(pool)
	if err != nil {
		return 0, 0, err
	}
	if dirty {
		return current, latest, fmt.Errorf("database is in dirty state at version %d", current)
	}
	return current, latest, nil
}
