package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pgrotate/internal/logging"
	"github.com/systmms/pgrotate/internal/rotation"
	"github.com/systmms/pgrotate/internal/secretstore"
	"github.com/systmms/pgrotate/tests/fakes"
)

func newTestHarness(t *testing.T) (http.Handler, *fakes.FakeSecretsManager) {
	t.Helper()

	sm := fakes.NewFakeSecretsManager()
	sm.AddSecret("prod/orders/db", true)
	sm.AddVersion("prod/orders/db", "v1",
		`{"username":"app","password":"old-password-old-password","host":"db.internal"}`,
		secretstore.StageCurrent)
	sm.AddVersion("prod/orders/db", "v2", "", secretstore.StagePending)

	store, err := secretstore.New(context.Background(), secretstore.Config{}, secretstore.WithClient(sm))
	require.NoError(t, err)

	db := fakes.NewDatabase(map[string]string{"app": "old-password-old-password"})
	logger := logging.New(false, true)
	rotator := rotation.New(store, db, logger)

	return newServeMux(rotator, logger, "/metrics"), sm
}

func TestServeHealth(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHarness(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServeMetricsEndpoint(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHarness(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeInvokeRunsStep(t *testing.T) {
	t.Parallel()

	handler, sm := newTestHarness(t)

	body := `{"Step":"createSecret","SecretId":"prod/orders/db","ClientRequestToken":"v2"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	version := sm.Version("prod/orders/db", "v2")
	require.NotNil(t, version)
	assert.NotEmpty(t, version.Value)
}

func TestServeInvokeRejectsUnknownStep(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHarness(t)

	body := `{"Step":"deleteSecret","SecretId":"prod/orders/db","ClientRequestToken":"v2"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeInvokeRejectsPreconditionFailures(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHarness(t)

	body := `{"Step":"createSecret","SecretId":"prod/orders/db","ClientRequestToken":"no-such-token"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no-such-token")
}

func TestServeInvokeRequiresPost(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHarness(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoke", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeInvokeMissingSecretIsNotFound(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHarness(t)

	body := `{"Step":"createSecret","SecretId":"no/such/secret","ClientRequestToken":"v2"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
