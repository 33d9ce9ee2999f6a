package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/pgrotate/internal/config"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgrotate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Path: writeConfig(t, `
version: 0
store:
  region: eu-central-1
  endpoint: http://localhost:4566
  access_key_id: test
  secret_access_key: test
database:
  sslmode: verify-full
  connect_timeout_seconds: 10
password:
  length: 48
server:
  listen: :9090
  metrics_path: /internal/metrics
`)}

	require.NoError(t, cfg.Load())

	store := cfg.StoreConfig()
	assert.Equal(t, "eu-central-1", store.Region)
	assert.Equal(t, "http://localhost:4566", store.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, ":9090", cfg.ListenAddr())
	assert.Equal(t, "/internal/metrics", cfg.MetricsPath())
	assert.Equal(t, 48, cfg.Definition.Password.Length)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Path: filepath.Join(t.TempDir(), "absent.yaml")}
	require.NoError(t, cfg.Load())

	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, "/metrics", cfg.MetricsPath())
	assert.Zero(t, cfg.ConnectTimeout())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "unsupported version",
			content: "version: 3\n",
			field:   "version",
		},
		{
			name:    "unknown sslmode",
			content: "database:\n  sslmode: maybe\n",
			field:   "database.sslmode",
		},
		{
			name:    "negative timeout",
			content: "database:\n  connect_timeout_seconds: -1\n",
			field:   "database.connect_timeout_seconds",
		},
		{
			name:    "short password",
			content: "password:\n  length: 12\n",
			field:   "password.length",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{Path: writeConfig(t, tt.content)}
			err := cfg.Load()

			var configErr pgerrors.ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.field, configErr.Field)
			assert.NotEmpty(t, configErr.Suggestion)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Path: writeConfig(t, "version: [unclosed\n")}
	err := cfg.Load()

	var configErr pgerrors.ConfigError
	require.ErrorAs(t, err, &configErr)
}

func TestStringOmitsCredentials(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Path: writeConfig(t, `
store:
  region: us-east-1
  access_key_id: AKIAEXAMPLE
  secret_access_key: topsecretvalue
`)}
	require.NoError(t, cfg.Load())

	out := cfg.String()
	assert.NotContains(t, out, "AKIAEXAMPLE")
	assert.NotContains(t, out, "topsecretvalue")
}
