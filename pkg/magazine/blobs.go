package magazine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// fileExtension returns the lower-cased text after the last dot, or "".
func fileExtension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// AllowedFile reports whether filename carries an allowed image extension.
func AllowedFile(filename string) bool {
	return allowedExtensions[fileExtension(filename)]
}

// SecureFilename strips directory components and every character outside
// [A-Za-z0-9._-] so the name is safe to store and to echo in headers.
func SecureFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(filename)

	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// Blobs stores uploaded images in a BlobStore backend.
type Blobs struct {
	store   BlobStore
	backend string
	logger  *slog.Logger
}

// NewBlobs wraps a backend. The name only appears in errors and logs.
func NewBlobs(store BlobStore, backend string, logger *slog.Logger) *Blobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blobs{store: store, backend: backend, logger: logger}
}

// Put validates and stores an upload for the owning collection and returns the
// generated blob id.
func (b *Blobs) Put(ctx context.Context, upload Upload, collection string) (string, error) {
	if !AllowedFile(upload.FileName) {
		return "", fmt.Errorf("%q: %w", upload.FileName, ErrInvalidExtension)
	}
	if upload.Reader == nil {
		return "", fmt.Errorf("upload %q has no content: %w", upload.FileName, ErrValidation)
	}

	ext := fileExtension(upload.FileName)
	filename := SecureFilename(upload.FileName)
	if !AllowedFile(filename) {
		filename = "image." + ext
	}
	contentType := upload.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			contentType = t
		}
	}

	id := uuid.NewString()
	err := b.store.UploadWithParams(ctx, upload.Reader, UploadParams{
		ObjectKey:  id,
		MimeType:   contentType,
		FileName:   filename,
		Collection: collection,
	})
	if err != nil {
		return "", &StorageError{Backend: b.backend, Key: id, Op: "put", Err: err}
	}

	b.logger.Debug("stored blob", "blob_id", id, "collection", collection, "file_name", filename)
	return id, nil
}

// Get returns the blob with its bytes. A malformed or unknown id yields
// ErrBlobNotFound; any other backend failure is a *StorageError.
func (b *Blobs) Get(ctx context.Context, id string) (*Blob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBlobNotFound
	}

	meta, err := b.store.GetObjectMeta(ctx, id)
	if err != nil {
		return nil, b.translate("get", id, err)
	}

	rc, err := b.store.Download(ctx, id)
	if err != nil {
		return nil, b.translate("get", id, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StorageError{Backend: b.backend, Key: id, Op: "get", Err: err}
	}

	return &Blob{
		ID:          id,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Collection:  meta.Collection,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// Delete removes the blob. Deleting a missing blob yields ErrBlobNotFound.
func (b *Blobs) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrBlobNotFound
	}
	if err := b.store.Delete(ctx, id); err != nil {
		return b.translate("delete", id, err)
	}
	b.logger.Debug("deleted blob", "blob_id", id)
	return nil
}

func (b *Blobs) translate(op, id string, err error) error {
	if errors.Is(err, ErrObjectNotFound) {
		return ErrBlobNotFound
	}
	return &StorageError{Backend: b.backend, Key: id, Op: op, Err: err}
}
