package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretNeverPrintsValue(t *testing.T) {
	t.Parallel()

	s := Secret("hunter2-hunter2-hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("password is %s", s), "hunter2")
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		secrets []string
		want    string
	}{
		{
			name:    "single_secret",
			input:   "connected with password s3cretvalue to host db",
			secrets: []string{"s3cretvalue"},
			want:    "connected with password [REDACTED] to host db",
		},
		{
			name:    "multiple_occurrences",
			input:   "old=topsecret new=topsecret",
			secrets: []string{"topsecret"},
			want:    "old=[REDACTED] new=[REDACTED]",
		},
		{
			name:    "short_values_untouched",
			input:   "port is 5432",
			secrets: []string{"54"},
			want:    "port is 5432",
		},
		{
			name:    "empty_secret_list",
			input:   "nothing to hide",
			secrets: nil,
			want:    "nothing to hide",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Redact(tt.input, tt.secrets))
		})
	}
}
