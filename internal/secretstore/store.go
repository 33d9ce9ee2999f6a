// Package secretstore wraps the AWS Secrets Manager client behind the
// small surface the rotation state machine consumes: describe, read a
// value by stage or version, write a pending version, and atomically
// move a staging label.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	pgerrors "github.com/systmms/pgrotate/internal/errors"
)

// Staging labels. Exactly one version carries StageCurrent at a time; at
// most one carries StagePending, tied to the in-flight request token.
const (
	StageCurrent = "AWSCURRENT"
	StagePending = "AWSPENDING"
)

// SecretsManagerAPI is the subset of the AWS Secrets Manager client the
// store uses. It exists so tests can inject a fake.
type SecretsManagerAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// Metadata is the secret description the dispatcher gates on.
type Metadata struct {
	RotationEnabled bool
	VersionStages   map[string][]string
}

// ValueQuery selects which value of a secret to read. Zero value reads
// the latest; the createSecret idempotency probe sets both fields.
type ValueQuery struct {
	VersionID string
	Stage     string
}

// Config holds client construction settings. Endpoint and the static
// credential pair are for LocalStack and tests.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Store is the versioned key-value boundary used by the rotation steps.
type Store struct {
	client SecretsManagerAPI
}

// Option is a functional option for configuring the store
type Option func(*Store)

// WithClient sets a custom Secrets Manager client (for testing)
func WithClient(client SecretsManagerAPI) Option {
	return func(s *Store) {
		s.client = client
	}
}

// New creates a store backed by a real Secrets Manager client unless one
// was injected via options.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	var configOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	s.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)

	return s, nil
}

// Describe fetches the rotation flag and the version-to-stages mapping.
func (s *Store) Describe(ctx context.Context, secretID string) (Metadata, error) {
	out, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return Metadata{}, s.wrapError(err, secretID, "")
	}

	return Metadata{
		RotationEnabled: aws.ToBool(out.RotationEnabled),
		VersionStages:   out.VersionIdsToStages,
	}, nil
}

// Value reads a secret string by version id, stage, or both. A missing
// version or stage surfaces as a typed NotFoundError so callers can
// treat it as a signal rather than sniffing error text.
func (s *Store) Value(ctx context.Context, secretID string, q ValueQuery) (string, error) {
	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	}
	if q.VersionID != "" {
		input.VersionId = aws.String(q.VersionID)
	}
	if q.Stage != "" {
		input.VersionStage = aws.String(q.Stage)
	}

	out, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		return "", s.wrapError(err, secretID, q.describe())
	}

	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s holds a binary value; only SecretString payloads are supported", secretID)
	}
	return *out.SecretString, nil
}

// Put writes a new secret version under the given client request token.
// Secrets Manager enforces at most one write per token, which is what
// makes concurrent createSecret attempts collapse to a single version.
func (s *Store) Put(ctx context.Context, secretID, token, value string, stages []string) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(token),
		SecretString:       aws.String(value),
		VersionStages:      stages,
	})
	if err != nil {
		return s.wrapError(err, secretID, "")
	}
	return nil
}

// MoveStage atomically attaches the stage to toVersion, removing it from
// fromVersion in the same indivisible step. An empty fromVersion omits
// the removal (first rotation: nothing carries the stage yet).
func (s *Store) MoveStage(ctx context.Context, secretID, stage, toVersion, fromVersion string) error {
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        aws.String(secretID),
		VersionStage:    aws.String(stage),
		MoveToVersionId: aws.String(toVersion),
	}
	if fromVersion != "" {
		input.RemoveFromVersionId = aws.String(fromVersion)
	}

	if _, err := s.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return s.wrapError(err, secretID, "")
	}
	return nil
}

func (s *Store) wrapError(err error, secretID, detail string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return pgerrors.NotFoundError{SecretID: secretID, Detail: detail}
	}
	return fmt.Errorf("secrets manager error for %s: %w", secretID, err)
}

func (q ValueQuery) describe() string {
	switch {
	case q.VersionID != "" && q.Stage != "":
		return fmt.Sprintf("version %s at stage %s", q.VersionID, q.Stage)
	case q.VersionID != "":
		return "version " + q.VersionID
	case q.Stage != "":
		return "stage " + q.Stage
	default:
		return ""
	}
}
