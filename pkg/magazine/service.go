package magazine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Service bundles the content manager, the registration ledger and student
// accounts over one record store and one blob store.
type Service struct {
	records     RecordStore
	blobStore   BlobStore
	backendName string
	logger      *slog.Logger
	now         func() time.Time
	bcryptCost  int

	blobs    *Blobs
	content  *ContentManager
	ledger   *Ledger
	accounts *Accounts
}

// Option represents a functional option for configuring the service
type Option func(*Service)

// WithRecordStore sets the record store for the service
func WithRecordStore(store RecordStore) Option {
	return func(s *Service) {
		s.records = store
	}
}

// WithBlobStore sets the blob storage backend. The name appears in errors and logs.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *Service) {
		s.backendName = name
		s.blobStore = store
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPasswordCost sets the bcrypt cost used for student passwords
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// uniqueIndexes are created on every New call; backends treat existing
// indexes as success.
var uniqueIndexes = []struct {
	collection string
	fields     []string
}{
	{RegistrationsCollection, []string{"event_id", "student_id"}},
	{StudentsCollection, []string{"roll_no"}},
	{StudentsCollection, []string{"email"}},
}

// New creates a new service instance with the given options and makes sure
// the unique indexes it relies on exist.
func New(ctx context.Context, options ...Option) (*Service, error) {
	s := &Service{
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}

	for _, option := range options {
		option(s)
	}

	if s.records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.backendName == "" {
		s.backendName = "default"
	}
	if s.bcryptCost < bcrypt.MinCost || s.bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("invalid bcrypt cost %d", s.bcryptCost)
	}

	for _, idx := range uniqueIndexes {
		if err := s.records.EnsureUniqueIndex(ctx, idx.collection, idx.fields...); err != nil {
			return nil, fmt.Errorf("failed to ensure unique index on %s%v: %w", idx.collection, idx.fields, err)
		}
	}

	s.blobs = NewBlobs(s.blobStore, s.backendName, s.logger)
	s.content = &ContentManager{store: s.records, blobs: s.blobs, now: s.now, logger: s.logger}
	s.ledger = &Ledger{store: s.records, now: s.now, logger: s.logger}
	s.accounts = &Accounts{store: s.records, now: s.now, logger: s.logger, bcryptCost: s.bcryptCost}

	return s, nil
}

// Content returns the content manager.
func (s *Service) Content() *ContentManager { return s.content }

// Ledger returns the registration ledger.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Accounts returns the student account manager.
func (s *Service) Accounts() *Accounts { return s.accounts }

// Blobs returns the blob store.
func (s *Service) Blobs() *Blobs { return s.blobs }

// Logger returns the logger the service writes to.
func (s *Service) Logger() *slog.Logger { return s.logger }
