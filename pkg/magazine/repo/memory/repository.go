package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/college-magazine/pkg/magazine"
)

type collection struct {
	docs    map[string]magazine.Document
	order   []string // insertion order of ids
	indexes [][]string
}

// Repository implements magazine.RecordStore using in-memory storage
type Repository struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		collections: make(map[string]*collection),
	}
}

func (r *Repository) collection(name string) *collection {
	c, ok := r.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]magazine.Document)}
		r.collections[name] = c
	}
	return c
}

// copyDocument returns a shallow copy with times normalised to UTC so that
// callers cannot mutate stored state.
func copyDocument(doc magazine.Document) magazine.Document {
	out := make(magazine.Document, len(doc))
	for k, v := range doc {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		out[k] = v
	}
	return out
}

// uniqueKey returns the index key of doc, or false when one of the fields is
// missing or null. Such documents are not constrained by the index.
func uniqueKey(doc magazine.Document, fields []string) (string, bool) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := doc[f]
		if !ok || v == nil {
			return "", false
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		parts = append(parts, fmt.Sprintf("%T:%v", v, v))
	}
	return strings.Join(parts, "\x00"), true
}

// checkUnique reports ErrDuplicate when doc collides with another document
// (other than skipID) on any unique index.
func (c *collection) checkUnique(doc magazine.Document, skipID string) error {
	for _, fields := range c.indexes {
		key, ok := uniqueKey(doc, fields)
		if !ok {
			continue
		}
		for id, other := range c.docs {
			if id == skipID {
				continue
			}
			if otherKey, ok := uniqueKey(other, fields); ok && otherKey == key {
				return fmt.Errorf("unique index on %s: %w", strings.Join(fields, ","), magazine.ErrDuplicate)
			}
		}
	}
	return nil
}

// matching returns matching documents in insertion order.
func (c *collection) matching(filter magazine.Filter) []magazine.Document {
	conds := filter.Conditions()
	var out []magazine.Document
	for _, id := range c.order {
		doc := c.docs[id]
		if matches(doc, conds) {
			out = append(out, doc)
		}
	}
	return out
}

func (c *collection) firstMatch(filter magazine.Filter) magazine.Document {
	conds := filter.Conditions()
	for _, id := range c.order {
		if doc := c.docs[id]; matches(doc, conds) {
			return doc
		}
	}
	return nil
}

// Insert stores a copy of doc
func (r *Repository) Insert(ctx context.Context, name string, doc magazine.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.collection(name)
	stored := copyDocument(doc)
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored[magazine.IDField] = id
	}
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("_id %s: %w", id, magazine.ErrDuplicate)
	}
	if err := c.checkUnique(stored, ""); err != nil {
		return "", err
	}

	c.docs[id] = stored
	c.order = append(c.order, id)
	return id, nil
}

// FindOne returns a copy of the first matching document
func (r *Repository) FindOne(ctx context.Context, name string, filter magazine.Filter) (magazine.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return nil, nil
	}
	doc := c.firstMatch(filter)
	if doc == nil {
		return nil, nil
	}
	return copyDocument(doc), nil
}

// Find returns copies of all matching documents. Sorting is stable so equal
// keys keep insertion order.
func (r *Repository) Find(ctx context.Context, name string, filter magazine.Filter, opts magazine.FindOptions) ([]magazine.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return []magazine.Document{}, nil
	}
	found := c.matching(filter)

	if opts.Sort != nil {
		field, dir := opts.Sort.Field, opts.Sort.Direction
		sort.SliceStable(found, func(i, j int) bool {
			cmp := compareValues(found[i][field], found[j][field])
			if dir == magazine.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if opts.Limit > 0 && len(found) > opts.Limit {
		found = found[:opts.Limit]
	}

	out := make([]magazine.Document, 0, len(found))
	for _, doc := range found {
		out = append(out, copyDocument(doc))
	}
	return out, nil
}

// UpdateOne sets the fields of patch on the first matching document. The _id
// of a document never changes.
func (r *Repository) UpdateOne(ctx context.Context, name string, filter magazine.Filter, patch magazine.Document) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collections[name]
	if !ok {
		return false, nil
	}
	doc := c.firstMatch(filter)
	if doc == nil {
		return false, nil
	}

	updated := copyDocument(doc)
	for k, v := range copyDocument(patch) {
		if k == magazine.IDField {
			continue
		}
		updated[k] = v
	}
	if err := c.checkUnique(updated, doc.ID()); err != nil {
		return false, err
	}
	c.docs[doc.ID()] = updated
	return true, nil
}

// DeleteOne removes the first matching document
func (r *Repository) DeleteOne(ctx context.Context, name string, filter magazine.Filter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collections[name]
	if !ok {
		return false, nil
	}
	doc := c.firstMatch(filter)
	if doc == nil {
		return false, nil
	}

	id := doc.ID()
	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Count returns the number of matching documents
func (r *Repository) Count(ctx context.Context, name string, filter magazine.Filter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return 0, nil
	}
	if len(filter) == 0 {
		return int64(len(c.docs)), nil
	}
	return int64(len(c.matching(filter))), nil
}

// EnsureUniqueIndex registers a unique index. Registering the same fields
// twice is a no-op; existing duplicates make it fail.
func (r *Repository) EnsureUniqueIndex(ctx context.Context, name string, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("unique index on %s needs at least one field", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.collection(name)
	for _, existing := range c.indexes {
		if strings.Join(existing, ",") == strings.Join(fields, ",") {
			return nil
		}
	}

	seen := make(map[string]bool, len(c.docs))
	for _, doc := range c.docs {
		key, ok := uniqueKey(doc, fields)
		if !ok {
			continue
		}
		if seen[key] {
			return fmt.Errorf("existing documents violate unique index on %s: %w", strings.Join(fields, ","), magazine.ErrDuplicate)
		}
		seen[key] = true
	}

	c.indexes = append(c.indexes, append([]string(nil), fields...))
	return nil
}
