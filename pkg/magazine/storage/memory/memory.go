package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/tendant/college-magazine/pkg/magazine"
)

type object struct {
	data        []byte
	contentType string
	fileName    string
	collection  string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the magazine.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*magazine.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, magazine.ErrObjectNotFound
	}

	return &magazine.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		FileName:    obj.fileName,
		Collection:  obj.collection,
		UpdatedAt:   obj.updatedAt,
		Metadata: map[string]string{
			"mime_type":  obj.contentType,
			"file_name":  obj.fileName,
			"collection": obj.collection,
		},
	}, nil
}

// UploadWithParams uploads content with parameters
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params magazine.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	contentType := params.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = &object{
		data:        data,
		contentType: contentType,
		fileName:    params.FileName,
		collection:  params.Collection,
		updatedAt:   time.Now().UTC(),
	}
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, magazine.ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return magazine.ErrObjectNotFound
	}

	delete(b.objects, objectKey)
	return nil
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
