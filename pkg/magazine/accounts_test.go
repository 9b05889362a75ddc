package magazine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/college-magazine/pkg/magazine"
)

func TestValidRollNumber(t *testing.T) {
	tests := map[string]bool{
		"23F01A0540":  true,
		"19B81A1234":  true,
		"23f01a0540":  false,
		"23F01A054":   false,
		"23F01A05400": false,
		"2XF01A0540":  false,
		"":            false,
	}
	for in, want := range tests {
		assert.Equal(t, want, magazine.ValidRollNumber(in), in)
	}
}

func TestAccounts_Create(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	accounts := f.svc.Accounts()

	account, err := accounts.Create(ctx, magazine.CreateAccountRequest{
		RollNo:   "23F01A0540",
		Email:    "  Asha@Example.EDU ",
		Name:     "Asha",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "asha@example.edu", account.Email)
	assert.NotEqual(t, "secret", account.PasswordHash)

	tests := []struct {
		name string
		req  magazine.CreateAccountRequest
		want error
	}{
		{"bad roll number", magazine.CreateAccountRequest{RollNo: "ABC", Email: "a@b.c", Name: "A", Password: "p"}, magazine.ErrInvalidRollNumber},
		{"missing password", magazine.CreateAccountRequest{RollNo: "23F01A0541", Email: "a@b.c", Name: "A"}, magazine.ErrValidation},
		{"roll number taken", magazine.CreateAccountRequest{RollNo: "23F01A0540", Email: "new@b.c", Name: "A", Password: "p"}, magazine.ErrRollNumberTaken},
		{"email taken", magazine.CreateAccountRequest{RollNo: "23F01A0541", Email: "ASHA@example.edu", Name: "A", Password: "p"}, magazine.ErrEmailTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccounts_ConcurrentSameRollNumber(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	const workers = 10
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		failed  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Accounts().Create(ctx, magazine.CreateAccountRequest{
				RollNo:   "23F01A0540",
				Email:    fmt.Sprintf("racer%d@example.edu", i),
				Name:     "Racer",
				Password: "secret",
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, magazine.ErrConflict):
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(workers-1), failed.Load())
	n, err := f.records.Count(ctx, magazine.StudentsCollection, magazine.Filter{"roll_no": "23F01A0540"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAccounts_Authenticate(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	created := createStudent(t, f.svc, 540)

	account, err := f.svc.Accounts().Authenticate(ctx, created.RollNo, "secret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)

	_, err = f.svc.Accounts().Authenticate(ctx, created.RollNo, "wrong")
	assert.ErrorIs(t, err, magazine.ErrInvalidCredentials)

	_, err = f.svc.Accounts().Authenticate(ctx, "23F01A9999", "secret")
	assert.ErrorIs(t, err, magazine.ErrInvalidCredentials)

	got, err := f.svc.Accounts().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	_, err = f.svc.Accounts().Get(ctx, "missing")
	assert.ErrorIs(t, err, magazine.ErrStudentNotFound)
}

func TestAdminCredentials_Verify(t *testing.T) {
	creds := magazine.AdminCredentials{Username: "admin", Password: "admin123"}
	assert.True(t, creds.Verify("admin", "admin123"))
	assert.False(t, creds.Verify("admin", "admin1234"))
	assert.False(t, creds.Verify("Admin", "admin123"))
	assert.False(t, magazine.AdminCredentials{}.Verify("", ""))
}
