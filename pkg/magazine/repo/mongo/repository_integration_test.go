//go:build integration
// +build integration

package mongo_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/college-magazine/pkg/magazine"
	mongorepo "github.com/tendant/college-magazine/pkg/magazine/repo/mongo"
	"github.com/tendant/college-magazine/pkg/magazine/storage/gridfs"
)

func setupMongo(t *testing.T) string {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestMongoBackends(t *testing.T) {
	uri := setupMongo(t)
	ctx := context.Background()

	client, err := mongorepo.Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	db := client.Database("college_magazine_test")

	t.Run("RecordStore", func(t *testing.T) {
		repo := mongorepo.New(db)
		require.NoError(t, repo.EnsureUniqueIndex(ctx, "registrations", "event_id", "student_id"))
		require.NoError(t, repo.EnsureUniqueIndex(ctx, "registrations", "event_id", "student_id"))

		_, err := repo.Insert(ctx, "registrations", magazine.Document{"event_id": "e", "student_id": "s", "registered_at": time.Now()})
		require.NoError(t, err)
		_, err = repo.Insert(ctx, "registrations", magazine.Document{"event_id": "e", "student_id": "s"})
		assert.ErrorIs(t, err, magazine.ErrDuplicate)

		doc, err := repo.FindOne(ctx, "registrations", magazine.Filter{"event_id": "e"})
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.False(t, doc.Time("registered_at").IsZero())

		missing, err := repo.FindOne(ctx, "registrations", magazine.ByID("nope"))
		require.NoError(t, err)
		assert.Nil(t, missing)

		matched, err := repo.UpdateOne(ctx, "registrations", magazine.ByID(doc.ID()), magazine.Document{"note": "x"})
		require.NoError(t, err)
		assert.True(t, matched)

		n, err := repo.Count(ctx, "registrations", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		deleted, err := repo.DeleteOne(ctx, "registrations", magazine.ByID(doc.ID()))
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("GridFS", func(t *testing.T) {
		backend, err := gridfs.New(db, "images")
		require.NoError(t, err)

		key := "5d1f5d0c-3b63-4d0a-9a3e-1c2b3d4e5f60"
		require.NoError(t, backend.UploadWithParams(ctx, strings.NewReader("png-bytes"), magazine.UploadParams{
			ObjectKey: key, MimeType: "image/png", FileName: "a.png", Collection: "gallery",
		}))

		meta, err := backend.GetObjectMeta(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "image/png", meta.ContentType)
		assert.Equal(t, "a.png", meta.FileName)
		assert.Equal(t, "gallery", meta.Collection)
		assert.Equal(t, int64(9), meta.Size)

		rc, err := backend.Download(ctx, key)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "png-bytes", string(data))

		require.NoError(t, backend.Delete(ctx, key))
		assert.ErrorIs(t, backend.Delete(ctx, key), magazine.ErrObjectNotFound)
		_, err = backend.GetObjectMeta(ctx, key)
		assert.ErrorIs(t, err, magazine.ErrObjectNotFound)
		_, err = backend.Download(ctx, key)
		assert.ErrorIs(t, err, magazine.ErrObjectNotFound)
	})
}
