package errors

import (
	"fmt"
	"strings"
)

// The rotation step taxonomy. Dispatcher-level failures
// (RotationNotEnabledError, UnknownVersionError, InvalidStageError,
// InvalidStepError) abort before any handler runs and never mutate state.
// MissingCredentialError and AuthenticationError are fatal for the attempt;
// the invoking orchestrator owns redelivery. NotFoundError is store-level
// and is an expected signal on the createSecret idempotency probe.

// RotationNotEnabledError indicates the secret's rotation flag is off.
type RotationNotEnabledError struct {
	SecretID string
}

func (e RotationNotEnabledError) Error() string {
	return fmt.Sprintf("rotation is not enabled for secret %s", e.SecretID)
}

// UnknownVersionError indicates the request token does not name any
// version of the secret.
type UnknownVersionError struct {
	SecretID string
	Token    string
}

func (e UnknownVersionError) Error() string {
	return fmt.Sprintf("version %s not found in version stages for secret %s", e.Token, e.SecretID)
}

// InvalidStageError indicates the token's version is not staged as expected.
type InvalidStageError struct {
	SecretID string
	Token    string
	Want     string
}

func (e InvalidStageError) Error() string {
	return fmt.Sprintf("version %s of secret %s is not staged %s", e.Token, e.SecretID, e.Want)
}

// InvalidStepError indicates an unrecognized rotation step name.
type InvalidStepError struct {
	Step string
}

func (e InvalidStepError) Error() string {
	return fmt.Sprintf("invalid rotation step: %q", e.Step)
}

// MissingCredentialError indicates a required field is absent from a
// credential payload. The initial password must be provisioned out-of-band
// before rotation is enabled.
type MissingCredentialError struct {
	Stage string
	Field string
}

func (e MissingCredentialError) Error() string {
	return fmt.Sprintf("credential payload at stage %s has no %q field; set it before enabling rotation", e.Stage, e.Field)
}

// AuthenticationError indicates the pending credential failed to
// authenticate against the database.
type AuthenticationError struct {
	Host string
	Err  error
}

func (e AuthenticationError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %v", e.Host, e.Err)
}

func (e AuthenticationError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates the requested secret version or stage does not
// exist in the store.
type NotFoundError struct {
	SecretID string
	Detail   string
}

func (e NotFoundError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("secret %s not found", e.SecretID)
	}
	return fmt.Sprintf("secret %s: %s not found", e.SecretID, e.Detail)
}

// UserError represents an error that should be shown to the user with
// helpful context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}
