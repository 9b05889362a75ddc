// Package mongo implements magazine.RecordStore on MongoDB, one Mongo
// collection per record collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// Repository implements magazine.RecordStore using a MongoDB database
type Repository struct {
	db *mongo.Database
}

// New creates a repository over db
func New(db *mongo.Database) *Repository {
	return &Repository{db: db}
}

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func (r *Repository) handleMongoError(operation string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", operation, magazine.ErrDuplicate)
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// toBSONFilter maps equality values directly and Cond values to their
// operator documents.
func toBSONFilter(filter magazine.Filter) bson.M {
	out := bson.M{}
	for _, c := range filter.Conditions() {
		if c.Op == magazine.OpEq {
			out[c.Field] = c.Value
			continue
		}
		out[c.Field] = bson.M{string(c.Op): c.Value}
	}
	return out
}

// normalize converts driver types to the Go types the core expects.
func normalize(m bson.M) magazine.Document {
	doc := make(magazine.Document, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case primitive.DateTime:
			doc[k] = x.Time().UTC()
		case time.Time:
			doc[k] = x.UTC()
		case int32:
			doc[k] = int64(x)
		case primitive.ObjectID:
			doc[k] = x.Hex()
		default:
			doc[k] = v
		}
	}
	return doc
}

// Insert stores doc under its _id, generating one when absent
func (r *Repository) Insert(ctx context.Context, collection string, doc magazine.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	stored[magazine.IDField] = id

	if _, err := r.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return "", r.handleMongoError("insert "+collection, err)
	}
	return id, nil
}

// FindOne returns the first matching document
func (r *Repository) FindOne(ctx context.Context, collection string, filter magazine.Filter) (magazine.Document, error) {
	var m bson.M
	err := r.db.Collection(collection).FindOne(ctx, toBSONFilter(filter)).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, r.handleMongoError("find "+collection, err)
	}
	return normalize(m), nil
}

// Find returns all matching documents
func (r *Repository) Find(ctx context.Context, collection string, filter magazine.Filter, opts magazine.FindOptions) ([]magazine.Document, error) {
	findOpts := options.Find()
	if opts.Sort != nil {
		dir := 1
		if opts.Sort.Direction == magazine.Descending {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.Sort.Field, Value: dir}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := r.db.Collection(collection).Find(ctx, toBSONFilter(filter), findOpts)
	if err != nil {
		return nil, r.handleMongoError("find "+collection, err)
	}
	defer cursor.Close(ctx)

	docs := []magazine.Document{}
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, r.handleMongoError("decode "+collection, err)
		}
		docs = append(docs, normalize(m))
	}
	if err := cursor.Err(); err != nil {
		return nil, r.handleMongoError("find "+collection, err)
	}
	return docs, nil
}

// UpdateOne applies patch with $set. The _id key of patch is ignored.
func (r *Repository) UpdateOne(ctx context.Context, collection string, filter magazine.Filter, patch magazine.Document) (bool, error) {
	set := bson.M{}
	for k, v := range patch {
		if k != magazine.IDField {
			set[k] = v
		}
	}
	if len(set) == 0 {
		n, err := r.db.Collection(collection).CountDocuments(ctx, toBSONFilter(filter), options.Count().SetLimit(1))
		if err != nil {
			return false, r.handleMongoError("update "+collection, err)
		}
		return n > 0, nil
	}

	res, err := r.db.Collection(collection).UpdateOne(ctx, toBSONFilter(filter), bson.M{"$set": set})
	if err != nil {
		return false, r.handleMongoError("update "+collection, err)
	}
	return res.MatchedCount > 0, nil
}

// DeleteOne removes the first matching document
func (r *Repository) DeleteOne(ctx context.Context, collection string, filter magazine.Filter) (bool, error) {
	res, err := r.db.Collection(collection).DeleteOne(ctx, toBSONFilter(filter))
	if err != nil {
		return false, r.handleMongoError("delete "+collection, err)
	}
	return res.DeletedCount > 0, nil
}

// Count returns the number of matching documents
func (r *Repository) Count(ctx context.Context, collection string, filter magazine.Filter) (int64, error) {
	n, err := r.db.Collection(collection).CountDocuments(ctx, toBSONFilter(filter))
	if err != nil {
		return 0, r.handleMongoError("count "+collection, err)
	}
	return n, nil
}

// EnsureUniqueIndex creates a unique index limited to documents that carry
// every field, so documents missing one are not constrained.
func (r *Repository) EnsureUniqueIndex(ctx context.Context, collection string, fields ...string) error {
	model, err := uniqueIndexModel(fields)
	if err != nil {
		return fmt.Errorf("unique index on %s: %w", collection, err)
	}
	if _, err := r.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return r.handleMongoError("create unique index on "+collection, err)
	}
	return nil
}

func uniqueIndexModel(fields []string) (mongo.IndexModel, error) {
	if len(fields) == 0 {
		return mongo.IndexModel{}, errors.New("needs at least one field")
	}
	keys := bson.D{}
	partial := bson.M{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
		partial[f] = bson.M{"$exists": true}
	}
	return mongo.IndexModel{
		Keys: keys,
		Options: options.Index().
			SetName("uq_" + strings.Join(fields, "_")).
			SetUnique(true).
			SetPartialFilterExpression(partial),
	}, nil
}
