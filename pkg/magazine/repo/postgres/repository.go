package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements magazine.RecordStore on a single jsonb documents
// table keyed by (collection, id).
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s violates %s: %w", operation, pgErr.ConstraintName, magazine.ErrDuplicate)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func scanDocument(row pgx.Row) (magazine.Document, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

// Insert stores doc under its _id, generating one when absent
func (r *Repository) Insert(ctx context.Context, collection string, doc magazine.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored := make(magazine.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored[magazine.IDField] = id

	raw, err := encodeDocument(stored)
	if err != nil {
		return "", err
	}

	query := `INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)`
	if _, err := r.db.Exec(ctx, query, collection, id, raw); err != nil {
		return "", r.handlePostgresError("insert "+collection, err)
	}
	return id, nil
}

// FindOne returns the first matching document in insertion order
func (r *Repository) FindOne(ctx context.Context, collection string, filter magazine.Filter) (magazine.Document, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT doc FROM documents WHERE ` + where + ` ORDER BY seq LIMIT 1`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, r.handlePostgresError("find "+collection, err)
	}
	return doc, nil
}

// Find returns all matching documents
func (r *Repository) Find(ctx context.Context, collection string, filter magazine.Filter, opts magazine.FindOptions) ([]magazine.Document, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT doc FROM documents WHERE ` + where
	orderBy, args := buildOrderBy(opts.Sort, args)
	query += orderBy
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("find "+collection, err)
	}
	defer rows.Close()

	docs := []magazine.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan "+collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("find "+collection, err)
	}
	return docs, nil
}

// UpdateOne merges patch into the first matching document. The _id key of
// patch is ignored.
func (r *Repository) UpdateOne(ctx context.Context, collection string, filter magazine.Filter, patch magazine.Document) (bool, error) {
	set := make(magazine.Document, len(patch))
	for k, v := range patch {
		if k != magazine.IDField {
			set[k] = v
		}
	}
	raw, err := encodeDocument(set)
	if err != nil {
		return false, err
	}

	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return false, err
	}
	args = append(args, raw)
	query := fmt.Sprintf(`
		UPDATE documents SET doc = doc || $%d::jsonb
		WHERE collection = $1 AND id = (
			SELECT id FROM documents WHERE %s ORDER BY seq LIMIT 1
		)`, len(args), where)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, r.handlePostgresError("update "+collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteOne removes the first matching document
func (r *Repository) DeleteOne(ctx context.Context, collection string, filter magazine.Filter) (bool, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		DELETE FROM documents
		WHERE collection = $1 AND id = (
			SELECT id FROM documents WHERE %s ORDER BY seq LIMIT 1
		)`, where)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, r.handlePostgresError("delete "+collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Count returns the number of matching documents
func (r *Repository) Count(ctx context.Context, collection string, filter magazine.Filter) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM documents WHERE `+where, args...).Scan(&n); err != nil {
		return 0, r.handlePostgresError("count "+collection, err)
	}
	return n, nil
}

// EnsureUniqueIndex creates a partial unique expression index over the text
// values of fields for one collection. Documents missing any of the fields
// are not constrained.
func (r *Repository) EnsureUniqueIndex(ctx context.Context, collection string, fields ...string) error {
	stmt, err := uniqueIndexStatement(collection, fields)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, stmt); err != nil {
		return r.handlePostgresError("create unique index on "+collection, err)
	}
	return nil
}

func uniqueIndexStatement(collection string, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("unique index on %s needs at least one field", collection)
	}
	if !identPattern.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	exprs := make([]string, 0, len(fields))
	for _, f := range fields {
		if !identPattern.MatchString(f) {
			return "", fmt.Errorf("invalid index field %q", f)
		}
		exprs = append(exprs, fmt.Sprintf("(doc->>'%s')", f))
	}

	name := "uq_" + collection + "_" + strings.Join(fields, "_")
	if len(name) > 63 {
		name = name[:63]
	}
	return fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON documents (%s) WHERE collection = '%s'",
		name, strings.Join(exprs, ", "), collection,
	), nil
}

// encodeDocument marshals doc with times in their sortable text form.
func encodeDocument(doc magazine.Document) ([]byte, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = encodeValue(v)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return raw, nil
}

func decodeDocument(raw []byte) (magazine.Document, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	doc := make(magazine.Document, len(m))
	for k, v := range m {
		doc[k] = decodeValue(v)
	}
	return doc, nil
}
