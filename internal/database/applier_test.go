package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pgrotate/internal/credential"
	"github.com/systmms/pgrotate/internal/database"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
	"github.com/systmms/pgrotate/internal/logging"
)

func mustParse(t *testing.T, raw string) credential.Payload {
	t.Helper()
	p, err := credential.Parse(raw)
	require.NoError(t, err)
	return p
}

// newMockApplier returns an applier whose opener hands out the sqlmock
// handle and records the DSN it was asked for.
func newMockApplier(t *testing.T, capturedDSN *string) (*database.Applier, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	applier := database.New(logging.New(false, true), database.WithOpener(func(dsn string) (*sql.DB, error) {
		if capturedDSN != nil {
			*capturedDSN = dsn
		}
		return db, nil
	}))
	return applier, mock
}

func TestSetPasswordIssuesAlterUser(t *testing.T) {
	t.Parallel()

	var dsn string
	applier, mock := newMockApplier(t, &dsn)

	mock.ExpectPing()
	mock.ExpectExec(`ALTER USER "app" WITH PASSWORD`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	admin := mustParse(t, `{"username":"app","password":"oldpass-oldpass","host":"db.internal"}`)
	target := admin.WithPassword("NewPass!NewPass!NewPass!NewPass!")

	err := applier.SetPassword(context.Background(), admin, target)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// Connects as the admin (current) credential, not the pending one.
	assert.Contains(t, dsn, "user='app'")
	assert.Contains(t, dsn, "password='oldpass-oldpass'")
	assert.Contains(t, dsn, "host='db.internal'")
	assert.Contains(t, dsn, "connect_timeout=5")
}

func TestSetPasswordIsRepeatable(t *testing.T) {
	t.Parallel()

	// Each call opens and closes its own connection, so the opener hands
	// out a fresh mock per invocation.
	var mocks []sqlmock.Sqlmock
	var handles []*sql.DB
	for i := 0; i < 2; i++ {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing()
		mock.ExpectExec(`ALTER USER "app" WITH PASSWORD`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectClose()
		mocks = append(mocks, mock)
		handles = append(handles, db)
	}

	calls := 0
	applier := database.New(logging.New(false, true), database.WithOpener(func(string) (*sql.DB, error) {
		db := handles[calls]
		calls++
		return db, nil
	}))

	admin := mustParse(t, `{"username":"app","password":"oldpass-oldpass","host":"db"}`)
	target := admin.WithPassword("NewPass!NewPass!NewPass!NewPass!")

	require.NoError(t, applier.SetPassword(context.Background(), admin, target))
	require.NoError(t, applier.SetPassword(context.Background(), admin, target))
	for _, mock := range mocks {
		require.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestSetPasswordClosesConnectionOnExecFailure(t *testing.T) {
	t.Parallel()

	applier, mock := newMockApplier(t, nil)

	mock.ExpectPing()
	mock.ExpectExec(`ALTER USER`).WillReturnError(errors.New("permission denied to alter role"))
	mock.ExpectClose()

	admin := mustParse(t, `{"username":"app","password":"oldpass-oldpass","host":"db"}`)
	err := applier.SetPassword(context.Background(), admin, admin.WithPassword("NewPass!NewPass!NewPass!NewPass!"))

	assert.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPasswordAuthFailureIsTyped(t *testing.T) {
	t.Parallel()

	applier, mock := newMockApplier(t, nil)

	mock.ExpectPing().WillReturnError(errors.New(`pq: password authentication failed for user "app"`))
	mock.ExpectClose()

	admin := mustParse(t, `{"username":"app","password":"wrong-wrong-wrong","host":"db"}`)
	err := applier.SetPassword(context.Background(), admin, admin)

	var authErr pgerrors.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifySucceedsOnPing(t *testing.T) {
	t.Parallel()

	applier, mock := newMockApplier(t, nil)

	mock.ExpectPing()
	mock.ExpectClose()

	creds := mustParse(t, `{"username":"app","password":"pending-pending","host":"db"}`)
	require.NoError(t, applier.Verify(context.Background(), creds))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyReturnsAuthenticationError(t *testing.T) {
	t.Parallel()

	applier, mock := newMockApplier(t, nil)

	cause := errors.New(`pq: password authentication failed for user "app"`)
	mock.ExpectPing().WillReturnError(cause)
	mock.ExpectClose()

	creds := mustParse(t, `{"username":"app","password":"pending-pending","host":"db.internal"}`)
	err := applier.Verify(context.Background(), creds)

	var authErr pgerrors.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "db.internal:5432", authErr.Host)
	require.NoError(t, mock.ExpectationsWereMet())
}
