package magazine

import (
	"context"
	"io"
	"sort"
	"time"
)

// IDField is the document key holding the generated identifier.
const IDField = "_id"

// Document is a schemaless record stored in a named collection.
type Document map[string]any

// ID returns the document identifier, or "" when unset.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// String returns the string stored under key, or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Time returns the time stored under key, or the zero time.
func (d Document) Time(key string) time.Time {
	t, _ := d[key].(time.Time)
	return t
}

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
)

// Cond is a non-equality filter condition on one field.
type Cond struct {
	Op    Op
	Value any
}

// Ne matches documents whose field differs from v.
func Ne(v any) Cond { return Cond{Op: OpNe, Value: v} }

// Gt matches documents whose field is greater than v.
func Gt(v any) Cond { return Cond{Op: OpGt, Value: v} }

// Gte matches documents whose field is greater than or equal to v.
func Gte(v any) Cond { return Cond{Op: OpGte, Value: v} }

// Lt matches documents whose field is less than v.
func Lt(v any) Cond { return Cond{Op: OpLt, Value: v} }

// Lte matches documents whose field is less than or equal to v.
func Lte(v any) Cond { return Cond{Op: OpLte, Value: v} }

// Filter selects documents. Plain values match by equality; Cond values apply
// their operator. An empty filter matches every document in the collection.
type Filter map[string]any

// ByID returns a filter matching the document with the given identifier.
func ByID(id string) Filter {
	return Filter{IDField: id}
}

// Condition is one normalised clause of a Filter.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Conditions flattens the filter into clauses ordered by field name so that
// backends build deterministic queries.
func (f Filter) Conditions() []Condition {
	conds := make([]Condition, 0, len(f))
	for field, v := range f {
		if c, ok := v.(Cond); ok {
			conds = append(conds, Condition{Field: field, Op: c.Op, Value: c.Value})
			continue
		}
		conds = append(conds, Condition{Field: field, Op: OpEq, Value: v})
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].Field < conds[j].Field })
	return conds
}

// Direction is a sort direction.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// Sort orders query results by one field.
type Sort struct {
	Field     string
	Direction Direction
}

// FindOptions controls ordering and size of Find results. A zero Limit means
// no limit.
type FindOptions struct {
	Sort  *Sort
	Limit int
}

// RecordStore defines the interface for document persistence
type RecordStore interface {
	// Insert stores doc and returns its identifier, generating one when doc
	// has no _id
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// FindOne returns the first matching document, or nil when none matches
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)

	// Find returns all matching documents
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error)

	// UpdateOne sets the fields of patch on the first matching document and
	// reports whether a document matched
	UpdateOne(ctx context.Context, collection string, filter Filter, patch Document) (bool, error)

	// DeleteOne removes the first matching document and reports whether a
	// document matched
	DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error)

	// Count returns the number of matching documents
	Count(ctx context.Context, collection string, filter Filter) (int64, error)

	// EnsureUniqueIndex makes the combination of fields unique within the
	// collection. Writes violating it fail with ErrDuplicate.
	EnsureUniqueIndex(ctx context.Context, collection string, fields ...string) error
}

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// UploadWithParams stores the content of reader under params.ObjectKey
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens the content stored under objectKey
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey  string
	MimeType   string
	FileName   string
	Collection string
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	FileName    string
	Collection  string
	UpdatedAt   time.Time
	Metadata    map[string]string
}
