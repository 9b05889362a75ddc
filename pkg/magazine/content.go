package magazine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ContentManager ties news, event and gallery records to their images. It is
// the only component that attaches or detaches a blob from a record.
type ContentManager struct {
	store  RecordStore
	blobs  *Blobs
	now    func() time.Time
	logger *slog.Logger
}

func validateFields(kind Kind, fields RecordFields) error {
	if strings.TrimSpace(fields.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrValidation)
	}
	if kind == KindEvent && fields.EventDate.IsZero() {
		return fmt.Errorf("event date is required: %w", ErrValidation)
	}
	return nil
}

func applyFields(r *Record, fields RecordFields) {
	r.Title = strings.TrimSpace(fields.Title)
	r.Body = fields.Body
	if r.Kind == KindEvent {
		d := fields.EventDate.UTC()
		r.EventDate = &d
		r.Location = fields.Location
	}
}

// storeUpload puts a valid upload and returns its id. Invalid or failed
// uploads are logged and reported as "" so the caller proceeds without an
// image.
func (m *ContentManager) storeUpload(ctx context.Context, kind Kind, upload *Upload) string {
	if upload == nil {
		return ""
	}
	id, err := m.blobs.Put(ctx, *upload, string(kind))
	if err != nil {
		if errors.Is(err, ErrValidation) {
			m.logger.Warn("ignoring rejected upload", "kind", kind, "file_name", upload.FileName, "error", err)
		} else {
			m.logger.Error("failed to store upload", "kind", kind, "file_name", upload.FileName, "error", err)
		}
		return ""
	}
	return id
}

// discardBlob deletes a blob that is no longer referenced. Absence is
// expected after partial failures and only logged.
func (m *ContentManager) discardBlob(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := m.blobs.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			m.logger.Warn("blob already gone", "blob_id", id)
			return
		}
		m.logger.Error("failed to delete orphaned blob", "blob_id", id, "error", err)
	}
}

// Create inserts a record. A valid upload is stored before the record so the
// record never references a blob that does not exist; an invalid or failed
// upload leaves the record without an image.
func (m *ContentManager) Create(ctx context.Context, kind Kind, fields RecordFields, upload *Upload) (*Record, error) {
	if _, err := schemaFor(kind); err != nil {
		return nil, err
	}
	if err := validateFields(kind, fields); err != nil {
		return nil, err
	}

	record := &Record{
		Kind:      kind,
		CreatedAt: m.now().UTC(),
	}
	applyFields(record, fields)
	record.ImageID = m.storeUpload(ctx, kind, upload)

	id, err := m.store.Insert(ctx, string(kind), recordDocument(record))
	if err != nil {
		m.discardBlob(ctx, record.ImageID)
		return nil, &RecordError{Collection: string(kind), Op: "create", Err: err}
	}
	record.ID = id

	m.logger.Info("created record", "kind", kind, "id", id, "image_id", record.ImageID)
	return record, nil
}

// Get returns the record or ErrRecordNotFound.
func (m *ContentManager) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	if _, err := schemaFor(kind); err != nil {
		return nil, err
	}
	doc, err := m.store.FindOne(ctx, string(kind), ByID(id))
	if err != nil {
		return nil, &RecordError{Collection: string(kind), ID: id, Op: "get", Err: err}
	}
	if doc == nil {
		return nil, ErrRecordNotFound
	}
	return recordFromDocument(kind, doc), nil
}

// Update replaces the mutable fields of a record. The creation timestamp is
// kept. A valid upload replaces the image: the new blob is stored, the record
// is pointed at it, then the old blob is deleted. Without a valid upload the
// image reference is left untouched.
func (m *ContentManager) Update(ctx context.Context, kind Kind, id string, fields RecordFields, upload *Upload) (*Record, error) {
	if _, err := schemaFor(kind); err != nil {
		return nil, err
	}
	if err := validateFields(kind, fields); err != nil {
		return nil, err
	}

	existing, err := m.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	applyFields(&updated, fields)

	var replaced string
	if upload != nil && AllowedFile(upload.FileName) {
		// A failed store still clears the old image.
		updated.ImageID = m.storeUpload(ctx, kind, upload)
		replaced = existing.ImageID
	}

	matched, err := m.store.UpdateOne(ctx, string(kind), ByID(id), recordDocument(&updated))
	if err != nil || !matched {
		if updated.ImageID != existing.ImageID {
			m.discardBlob(ctx, updated.ImageID)
		}
		if err != nil {
			return nil, &RecordError{Collection: string(kind), ID: id, Op: "update", Err: err}
		}
		return nil, ErrRecordNotFound
	}

	m.discardBlob(ctx, replaced)

	m.logger.Info("updated record", "kind", kind, "id", id, "image_id", updated.ImageID)
	return &updated, nil
}

// Delete removes a record together with its image. The record is read first
// to learn the image id; the blob goes before the record. A blob that is
// already missing does not block the delete, a storage failure does.
func (m *ContentManager) Delete(ctx context.Context, kind Kind, id string) error {
	existing, err := m.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	if existing.HasImage() {
		if err := m.blobs.Delete(ctx, existing.ImageID); err != nil {
			if !errors.Is(err, ErrBlobNotFound) {
				return err
			}
			m.logger.Warn("record referenced a missing blob", "kind", kind, "id", id, "blob_id", existing.ImageID)
		}
	}

	deleted, err := m.store.DeleteOne(ctx, string(kind), ByID(id))
	if err != nil {
		return &RecordError{Collection: string(kind), ID: id, Op: "delete", Err: err}
	}
	if !deleted {
		return ErrRecordNotFound
	}

	m.logger.Info("deleted record", "kind", kind, "id", id, "image_id", existing.ImageID)
	return nil
}

// List returns records of a kind, newest first unless opts says otherwise.
func (m *ContentManager) List(ctx context.Context, kind Kind, opts ListOptions) ([]*Record, error) {
	if _, err := schemaFor(kind); err != nil {
		return nil, err
	}
	sort := opts.Sort
	if sort == nil {
		s := DefaultSort(kind)
		sort = &s
	}

	docs, err := m.store.Find(ctx, string(kind), opts.Filter, FindOptions{Sort: sort, Limit: opts.Limit})
	if err != nil {
		return nil, &RecordError{Collection: string(kind), Op: "list", Err: err}
	}

	records := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFromDocument(kind, doc))
	}
	return records, nil
}

// UpcomingEvents returns events dated today or later, soonest first.
func (m *ContentManager) UpcomingEvents(ctx context.Context, limit int) ([]*Record, error) {
	now := m.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return m.List(ctx, KindEvent, ListOptions{
		Filter: Filter{fieldDate: Gte(today)},
		Sort:   &Sort{Field: fieldDate, Direction: Ascending},
		Limit:  limit,
	})
}

// Image returns an attached image by blob id.
func (m *ContentManager) Image(ctx context.Context, blobID string) (*Blob, error) {
	return m.blobs.Get(ctx, blobID)
}

// Counts returns the dashboard totals.
func (m *ContentManager) Counts(ctx context.Context) (*DashboardCounts, error) {
	var counts DashboardCounts
	targets := []struct {
		collection string
		dst        *int64
	}{
		{string(KindNews), &counts.News},
		{string(KindEvent), &counts.Events},
		{string(KindGallery), &counts.Gallery},
		{StudentsCollection, &counts.Students},
	}
	for _, t := range targets {
		n, err := m.store.Count(ctx, t.collection, nil)
		if err != nil {
			return nil, &RecordError{Collection: t.collection, Op: "count", Err: err}
		}
		*t.dst = n
	}
	return &counts, nil
}
