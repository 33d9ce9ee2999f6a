package rotation

import (
	pgerrors "github.com/systmms/pgrotate/internal/errors"
)

// Step is one of the four ordered steps of the rotation protocol.
type Step string

const (
	// StepCreate writes a new pending version with a fresh password.
	StepCreate Step = "createSecret"

	// StepSet applies the pending password to the live database principal.
	StepSet Step = "setSecret"

	// StepTest verifies the pending credential authenticates.
	StepTest Step = "testSecret"

	// StepFinish promotes the pending version to current.
	StepFinish Step = "finishSecret"
)

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, rejecting step
// names outside the protocol.
func (s *Step) UnmarshalText(text []byte) error {
	*s = Step(text)
	switch *s {
	case StepCreate, StepSet, StepTest, StepFinish:
		return nil
	default:
		return pgerrors.InvalidStepError{Step: string(text)}
	}
}

// Request is the rotation event delivered once per invocation. The
// trigger delivers at least once; every step handler is safe to re-run
// with the same token.
type Request struct {
	Step               Step   `json:"Step"`
	SecretID           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
}
