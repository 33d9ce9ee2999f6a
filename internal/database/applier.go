// Package database applies and verifies credentials against the target
// PostgreSQL instance.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/systmms/pgrotate/internal/credential"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
	"github.com/systmms/pgrotate/internal/logging"
)

// DefaultConnectTimeout bounds connection establishment. Statement
// execution is not separately bounded; a password change is immediate.
const DefaultConnectTimeout = 5 * time.Second

// Applier opens short-lived connections to the rotation target and
// issues the password-change statement. Connections are scoped to a
// single call and closed unconditionally.
type Applier struct {
	connectTimeout time.Duration
	sslMode        string
	logger         *logging.Logger

	// open is swappable so tests can hand in a sqlmock handle.
	open func(dsn string) (*sql.DB, error)
}

// Option is a functional option for configuring the applier
type Option func(*Applier)

// WithConnectTimeout overrides the connection establishment deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(a *Applier) {
		if d > 0 {
			a.connectTimeout = d
		}
	}
}

// WithSSLMode sets the sslmode connection parameter (default "require").
func WithSSLMode(mode string) Option {
	return func(a *Applier) {
		if mode != "" {
			a.sslMode = mode
		}
	}
}

// WithOpener sets a custom connection opener (for testing)
func WithOpener(open func(dsn string) (*sql.DB, error)) Option {
	return func(a *Applier) {
		a.open = open
	}
}

// New creates a credential applier for PostgreSQL targets.
func New(logger *logging.Logger, opts ...Option) *Applier {
	a := &Applier{
		connectTimeout: DefaultConnectTimeout,
		sslMode:        "require",
		logger:         logger,
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetPassword connects with the admin credential and changes the target
// principal's password in a single autocommitted statement. Re-running
// with the same inputs reapplies the same password, a database-level
// no-op, so the setSecret step stays idempotent.
//
// PostgreSQL rejects bind parameters in utility commands, so the role
// and password go through pq.QuoteIdentifier and pq.QuoteLiteral. Both
// values come from the trusted secret payload, never from the event.
func (a *Applier) SetPassword(ctx context.Context, admin, target credential.Payload) error {
	db, err := a.open(a.dsn(admin))
	if err != nil {
		return fmt.Errorf("failed to open connection to %s: %w", admin.Addr(), err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, a.connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return pgerrors.AuthenticationError{Host: admin.Addr(), Err: err}
	}

	stmt := fmt.Sprintf("ALTER USER %s WITH PASSWORD %s",
		pq.QuoteIdentifier(target.Username),
		pq.QuoteLiteral(target.Password),
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to change password for role %s: %w", target.Username, err)
	}

	a.logger.Info("Password updated for role %s on %s", target.Username, admin.Addr())
	return nil
}

// Verify opens a connection with the given credential and pings. A
// failure means the credential does not authenticate; nothing is
// mutated either way.
func (a *Applier) Verify(ctx context.Context, creds credential.Payload) error {
	db, err := a.open(a.dsn(creds))
	if err != nil {
		return fmt.Errorf("failed to open connection to %s: %w", creds.Addr(), err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, a.connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return pgerrors.AuthenticationError{Host: creds.Addr(), Err: err}
	}

	a.logger.Debug("Connection as %s to %s verified", creds.Username, creds.Addr())
	return nil
}

// dsn builds a keyword/value connection string for lib/pq. Values are
// single-quoted because rotation passwords carry punctuation.
func (a *Applier) dsn(p credential.Payload) string {
	parts := []string{
		fmt.Sprintf("host=%s", quoteDSN(p.Host)),
		fmt.Sprintf("port=%d", p.Port),
		fmt.Sprintf("dbname=%s", quoteDSN(p.DBName)),
		fmt.Sprintf("user=%s", quoteDSN(p.Username)),
		fmt.Sprintf("password=%s", quoteDSN(p.Password)),
		fmt.Sprintf("sslmode=%s", a.sslMode),
		fmt.Sprintf("connect_timeout=%d", int(a.connectTimeout.Seconds())),
	}
	return strings.Join(parts, " ")
}

func quoteDSN(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}
