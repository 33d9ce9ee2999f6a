package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/systmms/pgrotate/internal/credential"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
)

// Database is an in-memory stand-in for the rotation target: a map of
// role names to the password the database would currently accept.
type Database struct {
	mu        sync.Mutex
	Passwords map[string]string

	SetCalls    int
	VerifyCalls int
}

// NewDatabase creates a fake database with the given live passwords.
func NewDatabase(passwords map[string]string) *Database {
	if passwords == nil {
		passwords = make(map[string]string)
	}
	return &Database{Passwords: passwords}
}

// SetPassword authenticates the admin credential against the live
// passwords, then changes the target principal's password. Reapplying
// the same password succeeds, like the real ALTER USER.
func (d *Database) SetPassword(_ context.Context, admin, target credential.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.SetCalls++

	if d.Passwords[admin.Username] != admin.Password {
		return pgerrors.AuthenticationError{
			Host: admin.Addr(),
			Err:  errors.New("password authentication failed"),
		}
	}

	d.Passwords[target.Username] = target.Password
	return nil
}

// Verify checks the credential against the live passwords.
func (d *Database) Verify(_ context.Context, creds credential.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.VerifyCalls++

	if d.Passwords[creds.Username] != creds.Password {
		return pgerrors.AuthenticationError{
			Host: creds.Addr(),
			Err:  errors.New("password authentication failed"),
		}
	}
	return nil
}

// Password returns the live password for a role.
func (d *Database) Password(role string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Passwords[role]
}
