package magazine_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/college-magazine/pkg/magazine"
	"github.com/tendant/college-magazine/pkg/magazine/repo/memory"
	memorystorage "github.com/tendant/college-magazine/pkg/magazine/storage/memory"
)

var (
	testNow        = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	errBackendDown = errors.New("backend down")
)

// flakyBlobStore fails the operations whose flag is set.
type flakyBlobStore struct {
	*memorystorage.Backend
	failUpload   atomic.Bool
	failDownload atomic.Bool
	failDelete   atomic.Bool
}

func (f *flakyBlobStore) UploadWithParams(ctx context.Context, r io.Reader, p magazine.UploadParams) error {
	if f.failUpload.Load() {
		return errBackendDown
	}
	return f.Backend.UploadWithParams(ctx, r, p)
}

func (f *flakyBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.failDownload.Load() {
		return nil, errBackendDown
	}
	return f.Backend.Download(ctx, key)
}

func (f *flakyBlobStore) Delete(ctx context.Context, key string) error {
	if f.failDelete.Load() {
		return errBackendDown
	}
	return f.Backend.Delete(ctx, key)
}

// flakyRecordStore fails writes whose flag is set.
type flakyRecordStore struct {
	*memory.Repository
	failInsert atomic.Bool
	failUpdate atomic.Bool
	failIndex  atomic.Bool
}

func (f *flakyRecordStore) Insert(ctx context.Context, collection string, doc magazine.Document) (string, error) {
	if f.failInsert.Load() {
		return "", errBackendDown
	}
	return f.Repository.Insert(ctx, collection, doc)
}

func (f *flakyRecordStore) UpdateOne(ctx context.Context, collection string, filter magazine.Filter, patch magazine.Document) (bool, error) {
	if f.failUpdate.Load() {
		return false, errBackendDown
	}
	return f.Repository.UpdateOne(ctx, collection, filter, patch)
}

func (f *flakyRecordStore) EnsureUniqueIndex(ctx context.Context, collection string, fields ...string) error {
	if f.failIndex.Load() {
		return errBackendDown
	}
	return f.Repository.EnsureUniqueIndex(ctx, collection, fields...)
}

type fixture struct {
	svc     *magazine.Service
	records *flakyRecordStore
	blobs   *flakyBlobStore
}

// setupService creates a Service over in-memory stores that tests can make fail
func setupService(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records: &flakyRecordStore{Repository: memory.New()},
		blobs:   &flakyBlobStore{Backend: memorystorage.New()},
	}
	svc, err := magazine.New(context.Background(),
		magazine.WithRecordStore(f.records),
		magazine.WithBlobStore("memory", f.blobs),
		magazine.WithClock(func() time.Time { return testNow }),
		magazine.WithPasswordCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func pngUpload(name string) *magazine.Upload {
	return &magazine.Upload{
		Reader:   bytes.NewReader([]byte("\x89PNG " + name)),
		FileName: name,
	}
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
