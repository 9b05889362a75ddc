// Package gridfs stores blobs in a MongoDB GridFS bucket. The blob key is the
// GridFS file _id; content type and owning collection live in the file
// metadata.
package gridfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// DefaultBucket is the GridFS bucket name used when none is configured.
const DefaultBucket = "fs"

// Backend is a GridFS implementation of the magazine.BlobStore interface
type Backend struct {
	bucket *gridfs.Bucket
	name   string
}

type fileMetadata struct {
	ContentType string `bson:"content_type"`
	Collection  string `bson:"collection"`
}

// New opens the named bucket in db.
func New(db *mongo.Database, bucketName string) (*Backend, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket %s: %w", bucketName, err)
	}
	return &Backend{bucket: bucket, name: bucketName}, nil
}

// UploadWithParams streams reader into a new GridFS file with _id params.ObjectKey
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params magazine.UploadParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{
		"content_type": params.MimeType,
		"collection":   params.Collection,
	})
	if err := b.bucket.UploadFromStreamWithID(params.ObjectKey, params.FileName, reader, opts); err != nil {
		return fmt.Errorf("failed to upload to gridfs: %w", err)
	}
	return nil
}

// GetObjectMeta reads the files collection entry for objectKey
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*magazine.ObjectMeta, error) {
	cursor, err := b.bucket.FindContext(ctx, bson.M{"_id": objectKey})
	if err != nil {
		return nil, fmt.Errorf("failed to query gridfs: %w", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("failed to query gridfs: %w", err)
		}
		return nil, magazine.ErrObjectNotFound
	}

	var file gridfs.File
	if err := cursor.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode gridfs file: %w", err)
	}

	var meta fileMetadata
	if len(file.Metadata) > 0 {
		if err := bson.Unmarshal(file.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode gridfs metadata: %w", err)
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	return &magazine.ObjectMeta{
		Key:         objectKey,
		Size:        file.Length,
		ContentType: meta.ContentType,
		FileName:    file.Name,
		Collection:  meta.Collection,
		UpdatedAt:   file.UploadDate.UTC(),
		Metadata: map[string]string{
			"content_type": meta.ContentType,
			"collection":   meta.Collection,
			"bucket":       b.name,
		},
	}, nil
}

// Download opens a download stream for objectKey
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := b.bucket.OpenDownloadStream(objectKey)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, magazine.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download from gridfs: %w", err)
	}
	return stream, nil
}

// Delete removes the file and its chunks
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if err := b.bucket.DeleteContext(ctx, objectKey); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return magazine.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete from gridfs: %w", err)
	}
	return nil
}
