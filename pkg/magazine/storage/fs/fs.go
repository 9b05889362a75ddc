package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tendant/college-magazine/pkg/magazine"
)

const metaSuffix = ".meta.json"

// Backend is a filesystem implementation of the magazine.BlobStore interface.
// Each object is a data file plus a JSON sidecar holding its metadata.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// sidecar is the on-disk metadata of one object.
type sidecar struct {
	ContentType string    `json:"content_type"`
	FileName    string    `json:"file_name"`
	Collection  string    `json:"collection"`
	StoredAt    time.Time `json:"stored_at"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	baseDir := strings.TrimSpace(config.BaseDir)
	if baseDir == "" {
		return nil, errors.New("base directory is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: abs}, nil
}

// pathFromKey maps a key to its data file, sharded by the first two
// characters. Keys must be a single safe path segment.
func (b *Backend) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("object key is required")
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") || strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(b.baseDir, shard, key), nil
}

// writeAtomic streams r into a temp file and renames it over dst.
func (b *Backend) writeAtomic(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Join(b.baseDir, "tmp"), "put-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return 0, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return 0, err
	}
	return n, nil
}

// UploadWithParams writes the data file, then its metadata sidecar
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params magazine.UploadParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dataPath, err := b.pathFromKey(params.ObjectKey)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(sidecar{
		ContentType: params.MimeType,
		FileName:    params.FileName,
		Collection:  params.Collection,
		StoredAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.writeAtomic(dataPath, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if _, err := b.writeAtomic(dataPath+metaSuffix, strings.NewReader(string(meta))); err != nil {
		_ = os.Remove(dataPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*magazine.ObjectMeta, error) {
	dataPath, err := b.pathFromKey(objectKey)
	if err != nil {
		return nil, magazine.ErrObjectNotFound
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, magazine.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	var sc sidecar
	raw, err := os.ReadFile(dataPath + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		sc.StoredAt = info.ModTime()
	default:
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if sc.ContentType == "" {
		sc.ContentType = "application/octet-stream"
	}

	return &magazine.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: sc.ContentType,
		FileName:    sc.FileName,
		Collection:  sc.Collection,
		UpdatedAt:   sc.StoredAt,
		Metadata: map[string]string{
			"content_type": sc.ContentType,
			"file_name":    sc.FileName,
			"collection":   sc.Collection,
		},
	}, nil
}

// Download downloads content directly from the filesystem
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dataPath, err := b.pathFromKey(objectKey)
	if err != nil {
		return nil, magazine.ErrObjectNotFound
	}

	file, err := os.Open(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, magazine.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dataPath, err := b.pathFromKey(objectKey)
	if err != nil {
		return magazine.ErrObjectNotFound
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(dataPath); errors.Is(err, os.ErrNotExist) {
		return magazine.ErrObjectNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(dataPath + metaSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	b.cleanupEmptyDirectory(filepath.Dir(dataPath))
	return nil
}

// cleanupEmptyDirectory removes an empty shard directory
func (b *Backend) cleanupEmptyDirectory(dir string) {
	if dir == b.baseDir {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}
