package magazine

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// rollNumberPattern matches roll numbers such as 23F01A0540.
var rollNumberPattern = regexp.MustCompile(`^\d{2}[A-Z]\d{2}[A-Z]\d{4}$`)

// ValidRollNumber reports whether s is a well-formed roll number.
func ValidRollNumber(s string) bool {
	return rollNumberPattern.MatchString(s)
}

// NormalizeEmail returns the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Accounts manages student accounts.
type Accounts struct {
	store      RecordStore
	now        func() time.Time
	logger     *slog.Logger
	bcryptCost int
}

func (a *Accounts) findOne(ctx context.Context, filter Filter) (*StudentAccount, error) {
	doc, err := a.store.FindOne(ctx, StudentsCollection, filter)
	if err != nil {
		return nil, &RecordError{Collection: StudentsCollection, Op: "get", Err: err}
	}
	if doc == nil {
		return nil, nil
	}
	return accountFromDocument(doc), nil
}

// Create registers a student. Roll number and email must be unused; the
// unique indexes on both fields catch concurrent registrations that pass the
// pre-checks.
func (a *Accounts) Create(ctx context.Context, req CreateAccountRequest) (*StudentAccount, error) {
	rollNo := strings.TrimSpace(req.RollNo)
	email := NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	if !ValidRollNumber(rollNo) {
		return nil, ErrInvalidRollNumber
	}
	if email == "" || name == "" || req.Password == "" {
		return nil, fmt.Errorf("name, email and password are required: %w", ErrValidation)
	}

	existing, err := a.findOne(ctx, Filter{"roll_no": rollNo})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrRollNumberTaken
	}
	existing, err = a.findOne(ctx, Filter{"email": email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &StudentAccount{
		RollNo:       rollNo,
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    a.now().UTC(),
	}
	id, err := a.store.Insert(ctx, StudentsCollection, accountDocument(account))
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, &RecordError{Collection: StudentsCollection, Op: "create", Err: err}
	}
	account.ID = id

	a.logger.Info("created student account", "id", id, "roll_no", rollNo)
	return account, nil
}

// Authenticate returns the account when password matches the stored hash.
func (a *Accounts) Authenticate(ctx context.Context, rollNo, password string) (*StudentAccount, error) {
	account, err := a.findOne(ctx, Filter{"roll_no": strings.TrimSpace(rollNo)})
	if err != nil {
		return nil, err
	}
	if account == nil || account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// Get returns the account or ErrStudentNotFound.
func (a *Accounts) Get(ctx context.Context, id string) (*StudentAccount, error) {
	account, err := a.findOne(ctx, ByID(id))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrStudentNotFound
	}
	return account, nil
}

// AdminCredentials is the single configured admin login.
type AdminCredentials struct {
	Username string
	Password string
}

// Verify compares the supplied credentials directly.
func (c AdminCredentials) Verify(username, password string) bool {
	if c.Username == "" || c.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return userOK && passOK
}
