// Package rotation implements the four-step state machine that drives a
// PostgreSQL credential in AWS Secrets Manager through a zero-downtime
// password rotation.
//
// Each invocation handles exactly one step for one {secret, token} pair.
// The store's version model provides all correctness-relevant
// synchronization: write-once semantics per token for createSecret and
// the atomic dual-label move for finishSecret. Every handler is
// idempotent, so blind redelivery by the trigger is safe.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/pgrotate/internal/credential"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
	"github.com/systmms/pgrotate/internal/logging"
	"github.com/systmms/pgrotate/internal/password"
	"github.com/systmms/pgrotate/internal/secretstore"
)

// Store is the versioned secret store consumed by the state machine.
// Implemented by secretstore.Store; faked in tests.
type Store interface {
	Describe(ctx context.Context, secretID string) (secretstore.Metadata, error)
	Value(ctx context.Context, secretID string, q secretstore.ValueQuery) (string, error)
	Put(ctx context.Context, secretID, token, value string, stages []string) error
	MoveStage(ctx context.Context, secretID, stage, toVersion, fromVersion string) error
}

// Applier changes and verifies credentials on the rotation target.
type Applier interface {
	SetPassword(ctx context.Context, admin, target credential.Payload) error
	Verify(ctx context.Context, creds credential.Payload) error
}

// Rotator dispatches rotation requests to the step handlers.
type Rotator struct {
	store   Store
	applier Applier
	logger  *logging.Logger
	metrics *Metrics

	passwordLength int
	generate       func(length int) (string, error)
}

// RotatorOption is a functional option for configuring the rotator
type RotatorOption func(*Rotator)

// WithPasswordLength sets the generated password length (minimum 32).
func WithPasswordLength(length int) RotatorOption {
	return func(r *Rotator) {
		if length > 0 {
			r.passwordLength = length
		}
	}
}

// WithGenerator sets a custom password generator (for testing)
func WithGenerator(generate func(length int) (string, error)) RotatorOption {
	return func(r *Rotator) {
		r.generate = generate
	}
}

// WithMetrics enables step metrics recording.
func WithMetrics(m *Metrics) RotatorOption {
	return func(r *Rotator) {
		r.metrics = m
	}
}

// New creates a rotator with injected store and applier.
func New(store Store, applier Applier, logger *logging.Logger, opts ...RotatorOption) *Rotator {
	r := &Rotator{
		store:          store,
		applier:        applier,
		logger:         logger,
		passwordLength: password.MinLength,
		generate:       password.Generate,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle validates the request against the secret's version state and
// executes exactly one step handler.
//
// The precondition gate is identical for all steps and runs before any
// handler logic: rotation must be enabled, the token must name a known
// version, and that version must be staged AWSPENDING. This is what
// keeps a stale or unrelated token from mutating anything.
func (r *Rotator) Handle(ctx context.Context, req Request) (err error) {
	if r.metrics != nil {
		r.metrics.RecordStarted(req.Step)
		started := time.Now()
		defer func() {
			r.metrics.RecordCompleted(req.Step, err, time.Since(started))
		}()
	}

	meta, err := r.store.Describe(ctx, req.SecretID)
	if err != nil {
		return fmt.Errorf("failed to describe secret: %w", err)
	}

	if !meta.RotationEnabled {
		return pgerrors.RotationNotEnabledError{SecretID: req.SecretID}
	}

	stages, ok := meta.VersionStages[req.ClientRequestToken]
	if !ok {
		return pgerrors.UnknownVersionError{SecretID: req.SecretID, Token: req.ClientRequestToken}
	}

	if !hasStage(stages, secretstore.StagePending) {
		return pgerrors.InvalidStageError{
			SecretID: req.SecretID,
			Token:    req.ClientRequestToken,
			Want:     secretstore.StagePending,
		}
	}

	r.logger.Debug("Dispatching %s for secret %s", req.Step, req.SecretID)

	switch req.Step {
	case StepCreate:
		return r.createSecret(ctx, req.SecretID, req.ClientRequestToken)
	case StepSet:
		return r.setSecret(ctx, req.SecretID, req.ClientRequestToken)
	case StepTest:
		return r.testSecret(ctx, req.SecretID, req.ClientRequestToken)
	case StepFinish:
		return r.finishSecret(ctx, req.SecretID, req.ClientRequestToken)
	default:
		return pgerrors.InvalidStepError{Step: string(req.Step)}
	}
}

// createSecret ensures a pending version with a fresh password exists
// for the token. The store's NotFound on the probe is the expected
// signal to proceed; writing with the token as the version identifier
// makes concurrent attempts collapse to a single version.
func (r *Rotator) createSecret(ctx context.Context, secretID, token string) error {
	_, err := r.store.Value(ctx, secretID, secretstore.ValueQuery{
		VersionID: token,
		Stage:     secretstore.StagePending,
	})
	if err == nil {
		r.logger.Info("Pending version already exists for token %s, nothing to do", token)
		return nil
	}
	var notFound pgerrors.NotFoundError
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to probe for pending version: %w", err)
	}

	current, err := r.payloadAt(ctx, secretID, secretstore.ValueQuery{Stage: secretstore.StageCurrent})
	if err != nil {
		return err
	}
	if !current.HasPassword() {
		return pgerrors.MissingCredentialError{Stage: secretstore.StageCurrent, Field: "password"}
	}

	newPassword, err := r.generate(r.passwordLength)
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}

	value, err := current.WithPassword(newPassword).Encode()
	if err != nil {
		return err
	}

	if err := r.store.Put(ctx, secretID, token, value, []string{secretstore.StagePending}); err != nil {
		return fmt.Errorf("failed to write pending version: %w", err)
	}

	r.logger.Info("Created pending version for secret %s", secretID)
	return nil
}

// setSecret pushes the pending password into the live principal. It
// connects with the current credential: the principal still holds the
// old password at the database level until this step lands.
func (r *Rotator) setSecret(ctx context.Context, secretID, token string) error {
	pending, err := r.payloadAt(ctx, secretID, secretstore.ValueQuery{VersionID: token})
	if err != nil {
		return err
	}

	current, err := r.payloadAt(ctx, secretID, secretstore.ValueQuery{Stage: secretstore.StageCurrent})
	if err != nil {
		return err
	}
	if !current.HasPassword() {
		return pgerrors.MissingCredentialError{Stage: secretstore.StageCurrent, Field: "password"}
	}

	if err := r.applier.SetPassword(ctx, current, pending); err != nil {
		return err
	}

	r.logger.Info("Applied pending password for role %s", pending.Username)
	return nil
}

// testSecret confirms the pending credential authenticates. No state is
// mutated; database-level acceptance is all this step validates.
func (r *Rotator) testSecret(ctx context.Context, secretID, token string) error {
	pending, err := r.payloadAt(ctx, secretID, secretstore.ValueQuery{VersionID: token})
	if err != nil {
		return err
	}

	if err := r.applier.Verify(ctx, pending); err != nil {
		return err
	}

	r.logger.Info("Pending credential for secret %s authenticates", secretID)
	return nil
}

// finishSecret atomically promotes the pending version to current. If
// the token is already current the promotion happened on an earlier
// delivery and no store write is attempted. When no version carries the
// current stage yet (very first rotation), the label is attached with
// no removal step.
func (r *Rotator) finishSecret(ctx context.Context, secretID, token string) error {
	meta, err := r.store.Describe(ctx, secretID)
	if err != nil {
		return fmt.Errorf("failed to describe secret: %w", err)
	}

	var currentVersion string
	for version, stages := range meta.VersionStages {
		if hasStage(stages, secretstore.StageCurrent) {
			currentVersion = version
			break
		}
	}

	if currentVersion == token {
		r.logger.Info("Version %s is already current, nothing to do", token)
		return nil
	}

	if err := r.store.MoveStage(ctx, secretID, secretstore.StageCurrent, token, currentVersion); err != nil {
		return fmt.Errorf("failed to promote pending version: %w", err)
	}

	r.logger.Info("Moved %s from version %s to version %s", secretstore.StageCurrent, currentVersion, token)
	return nil
}

func (r *Rotator) payloadAt(ctx context.Context, secretID string, q secretstore.ValueQuery) (credential.Payload, error) {
	raw, err := r.store.Value(ctx, secretID, q)
	if err != nil {
		return credential.Payload{}, err
	}
	return credential.Parse(raw)
}

func hasStage(stages []string, want string) bool {
	for _, stage := range stages {
		if stage == want {
			return true
		}
	}
	return false
}
