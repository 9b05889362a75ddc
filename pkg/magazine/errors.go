package magazine

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below wraps exactly one of these so callers
// can branch with errors.Is or KindOf.
var (
	// ErrValidation indicates rejected input; nothing was mutated
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a missing record, blob, event or student
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation
	ErrConflict = errors.New("conflict")
)

// Error types
var (
	// ErrInvalidExtension indicates an upload whose filename is not an allowed image type
	ErrInvalidExtension = fmt.Errorf("file extension not allowed: %w", ErrValidation)

	// ErrInvalidRollNumber indicates a roll number not shaped like 23F01A0540
	ErrInvalidRollNumber = fmt.Errorf("invalid roll number format: %w", ErrValidation)

	// ErrUnknownKind indicates a content kind other than news, events or gallery
	ErrUnknownKind = fmt.Errorf("unknown content kind: %w", ErrValidation)

	// ErrRecordNotFound indicates a content record was not found
	ErrRecordNotFound = fmt.Errorf("record %w", ErrNotFound)

	// ErrBlobNotFound indicates an image blob was not found
	ErrBlobNotFound = fmt.Errorf("image %w", ErrNotFound)

	// ErrObjectNotFound is returned by BlobStore backends for a missing key
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)

	// ErrEventNotFound indicates the event of a registration does not exist
	ErrEventNotFound = fmt.Errorf("event %w", ErrNotFound)

	// ErrStudentNotFound indicates a student account was not found
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)

	// ErrDuplicate is returned by RecordStore backends when a write violates a
	// unique index or reuses an existing _id
	ErrDuplicate = fmt.Errorf("duplicate document: %w", ErrConflict)

	// ErrAlreadyRegistered indicates the student is already registered for the event
	ErrAlreadyRegistered = fmt.Errorf("already registered for this event: %w", ErrConflict)

	// ErrRollNumberTaken indicates another account uses the roll number
	ErrRollNumberTaken = fmt.Errorf("roll number already registered: %w", ErrConflict)

	// ErrEmailTaken indicates another account uses the email
	ErrEmailTaken = fmt.Errorf("email already registered: %w", ErrConflict)

	// ErrAccountExists indicates a concurrent registration won the unique index
	ErrAccountExists = fmt.Errorf("account already exists: %w", ErrConflict)

	// ErrInvalidCredentials indicates a failed login
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrorKind classifies an error into the outcomes the boundary reports.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "storage"
	}
}

// KindOf reports the kind of err. Anything that is not a validation, not-found
// or conflict error is a storage failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindStorage
	}
}

// RecordError represents an error related to record store operations
type RecordError struct {
	Collection string
	ID         string
	Op         string
	Err        error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("record operation %s failed in %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("record operation %s failed for %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
