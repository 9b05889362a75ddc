package magazine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/college-magazine/pkg/magazine"
	"github.com/tendant/college-magazine/pkg/magazine/repo/memory"
	memorystorage "github.com/tendant/college-magazine/pkg/magazine/storage/memory"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("requires record store", func(t *testing.T) {
		_, err := magazine.New(ctx, magazine.WithBlobStore("memory", memorystorage.New()))
		assert.EqualError(t, err, "record store is required")
	})

	t.Run("requires blob store", func(t *testing.T) {
		_, err := magazine.New(ctx, magazine.WithRecordStore(memory.New()))
		assert.EqualError(t, err, "blob store is required")
	})

	t.Run("rejects bcrypt cost", func(t *testing.T) {
		_, err := magazine.New(ctx,
			magazine.WithRecordStore(memory.New()),
			magazine.WithBlobStore("memory", memorystorage.New()),
			magazine.WithPasswordCost(99),
		)
		assert.Error(t, err)
	})

	t.Run("index failure", func(t *testing.T) {
		records := &flakyRecordStore{Repository: memory.New()}
		records.failIndex.Store(true)
		_, err := magazine.New(ctx,
			magazine.WithRecordStore(records),
			magazine.WithBlobStore("memory", memorystorage.New()),
		)
		assert.ErrorIs(t, err, errBackendDown)
	})

	t.Run("idempotent over one store", func(t *testing.T) {
		records := memory.New()
		for i := 0; i < 2; i++ {
			svc, err := magazine.New(ctx,
				magazine.WithRecordStore(records),
				magazine.WithBlobStore("memory", memorystorage.New()),
			)
			require.NoError(t, err)
			assert.NotNil(t, svc.Content())
			assert.NotNil(t, svc.Ledger())
			assert.NotNil(t, svc.Accounts())
			assert.NotNil(t, svc.Logger())
		}
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want magazine.ErrorKind
	}{
		{nil, magazine.KindNone},
		{magazine.ErrInvalidExtension, magazine.KindValidation},
		{magazine.ErrUnknownKind, magazine.KindValidation},
		{magazine.ErrEventNotFound, magazine.KindNotFound},
		{magazine.ErrBlobNotFound, magazine.KindNotFound},
		{magazine.ErrDuplicate, magazine.KindConflict},
		{magazine.ErrAlreadyRegistered, magazine.KindConflict},
		{&magazine.RecordError{Collection: "news", Op: "get", Err: magazine.ErrRecordNotFound}, magazine.KindNotFound},
		{&magazine.StorageError{Backend: "s3", Key: "k", Op: "put", Err: errors.New("boom")}, magazine.KindStorage},
		{magazine.ErrInvalidCredentials, magazine.KindStorage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, magazine.KindOf(tt.err))
	}
	assert.Equal(t, "not_found", magazine.KindNotFound.String())
}

func TestErrorMessages(t *testing.T) {
	err := &magazine.RecordError{Collection: "events", ID: "42", Op: "update", Err: errBackendDown}
	assert.Equal(t, "record operation update failed for events/42: backend down", err.Error())

	err = &magazine.RecordError{Collection: "events", Op: "list", Err: errBackendDown}
	assert.Equal(t, "record operation list failed in events: backend down", err.Error())

	sErr := &magazine.StorageError{Backend: "fs", Key: "abc", Op: "get", Err: errBackendDown}
	assert.Equal(t, "storage operation get failed for key abc on backend fs: backend down", sErr.Error())
	assert.ErrorIs(t, sErr, errBackendDown)
}
