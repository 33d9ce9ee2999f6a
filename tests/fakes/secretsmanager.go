package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretVersion is one immutable version of a fake secret. A version
// with an empty Value models the state the service creates when it
// stages a rotation token before any value is written: it appears in
// the metadata but has no retrievable secret value yet.
type SecretVersion struct {
	Value  string
	Stages []string
}

// Secret holds the versioned state of one fake secret.
type Secret struct {
	RotationEnabled bool
	Versions        map[string]*SecretVersion
}

// FakeSecretsManager is an in-memory Secrets Manager implementing the
// client subset the store consumes. It enforces the store guarantees
// the rotation protocol depends on: at most one write per client
// request token and an indivisible dual-label stage move.
type FakeSecretsManager struct {
	mu      sync.Mutex
	Secrets map[string]*Secret

	// Errors maps secret ids to forced errors for failure injection.
	Errors map[string]error

	// Mutation counters for asserting that read-only paths stay read-only.
	PutCalls  int
	MoveCalls int
}

// NewFakeSecretsManager creates an empty fake store.
func NewFakeSecretsManager() *FakeSecretsManager {
	return &FakeSecretsManager{
		Secrets: make(map[string]*Secret),
		Errors:  make(map[string]error),
	}
}

// AddSecret registers a secret with the given rotation flag.
func (f *FakeSecretsManager) AddSecret(id string, rotationEnabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[id] = &Secret{
		RotationEnabled: rotationEnabled,
		Versions:        make(map[string]*SecretVersion),
	}
}

// AddVersion attaches a version with the given stages to a secret.
func (f *FakeSecretsManager) AddVersion(id, versionID, value string, stages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[id].Versions[versionID] = &SecretVersion{Value: value, Stages: stages}
}

// Version returns a copy of the stored version, or nil if absent.
func (f *FakeSecretsManager) Version(id, versionID string) *SecretVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	secret, ok := f.Secrets[id]
	if !ok {
		return nil
	}
	version, ok := secret.Versions[versionID]
	if !ok {
		return nil
	}
	copied := *version
	copied.Stages = append([]string(nil), version.Stages...)
	return &copied
}

// VersionsWithStage returns the ids of versions carrying the stage.
func (f *FakeSecretsManager) VersionsWithStage(id, stage string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	secret, ok := f.Secrets[id]
	if !ok {
		return nil
	}
	for versionID, version := range secret.Versions {
		if hasStage(version.Stages, stage) {
			out = append(out, versionID)
		}
	}
	return out
}

// DescribeSecret implements the Secrets Manager DescribeSecret call.
func (f *FakeSecretsManager) DescribeSecret(_ context.Context, params *secretsmanager.DescribeSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secret, err := f.lookup(aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	stages := make(map[string][]string, len(secret.Versions))
	for versionID, version := range secret.Versions {
		stages[versionID] = append([]string(nil), version.Stages...)
	}

	return &secretsmanager.DescribeSecretOutput{
		RotationEnabled:    aws.Bool(secret.RotationEnabled),
		VersionIdsToStages: stages,
	}, nil
}

// GetSecretValue implements version and stage resolution. A request
// naming both a version id and a stage only matches a version carrying
// both, mirroring the real service.
func (f *FakeSecretsManager) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secret, err := f.lookup(aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	wantVersion := aws.ToString(params.VersionId)
	wantStage := aws.ToString(params.VersionStage)
	if wantVersion == "" && wantStage == "" {
		wantStage = "AWSCURRENT"
	}

	for versionID, version := range secret.Versions {
		if version.Value == "" {
			continue
		}
		if wantVersion != "" && versionID != wantVersion {
			continue
		}
		if wantStage != "" && !hasStage(version.Stages, wantStage) {
			continue
		}
		return &secretsmanager.GetSecretValueOutput{
			SecretString:  aws.String(version.Value),
			VersionId:     aws.String(versionID),
			VersionStages: append([]string(nil), version.Stages...),
		}, nil
	}

	return nil, &types.ResourceNotFoundException{
		Message: aws.String("Secrets Manager can't find the specified secret value for staging label"),
	}
}

// PutSecretValue enforces write-once per client request token: a repeat
// with the same value is an idempotent success, a different value is
// rejected.
func (f *FakeSecretsManager) PutSecretValue(_ context.Context, params *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.SecretId)
	secret, err := f.lookup(id)
	if err != nil {
		return nil, err
	}

	f.PutCalls++

	token := aws.ToString(params.ClientRequestToken)
	value := aws.ToString(params.SecretString)

	if existing, ok := secret.Versions[token]; ok {
		if existing.Value == "" {
			// Staged but unwritten: the first put fills it in.
			existing.Value = value
			for _, stage := range params.VersionStages {
				if !hasStage(existing.Stages, stage) {
					existing.Stages = append(existing.Stages, stage)
				}
			}
			return &secretsmanager.PutSecretValueOutput{VersionId: aws.String(token)}, nil
		}
		if existing.Value == value {
			return &secretsmanager.PutSecretValueOutput{VersionId: aws.String(token)}, nil
		}
		return nil, &types.ResourceExistsException{
			Message: aws.String("A version with this ClientRequestToken already exists with different content"),
		}
	}

	secret.Versions[token] = &SecretVersion{
		Value:  value,
		Stages: append([]string(nil), params.VersionStages...),
	}

	return &secretsmanager.PutSecretValueOutput{VersionId: aws.String(token)}, nil
}

// UpdateSecretVersionStage performs the atomic dual-label move: under
// one lock the stage leaves the old version and lands on the new one,
// so no reader can observe zero or two holders.
func (f *FakeSecretsManager) UpdateSecretVersionStage(_ context.Context, params *secretsmanager.UpdateSecretVersionStageInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secret, err := f.lookup(aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	f.MoveCalls++

	stage := aws.ToString(params.VersionStage)
	target, ok := secret.Versions[aws.ToString(params.MoveToVersionId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Secrets Manager can't find the specified secret version"),
		}
	}

	if params.RemoveFromVersionId != nil {
		source, ok := secret.Versions[aws.ToString(params.RemoveFromVersionId)]
		if !ok || !hasStage(source.Stages, stage) {
			return nil, &types.InvalidParameterException{
				Message: aws.String(fmt.Sprintf("The version %s is not attached to staging label %s", aws.ToString(params.RemoveFromVersionId), stage)),
			}
		}
		source.Stages = removeStage(source.Stages, stage)
	}

	if !hasStage(target.Stages, stage) {
		target.Stages = append(target.Stages, stage)
	}

	return &secretsmanager.UpdateSecretVersionStageOutput{}, nil
}

func (f *FakeSecretsManager) lookup(id string) (*Secret, error) {
	if err, ok := f.Errors[id]; ok {
		return nil, err
	}
	secret, ok := f.Secrets[id]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Secrets Manager can't find the specified secret"),
		}
	}
	return secret, nil
}

func hasStage(stages []string, want string) bool {
	for _, stage := range stages {
		if stage == want {
			return true
		}
	}
	return false
}

func removeStage(stages []string, drop string) []string {
	out := stages[:0]
	for _, stage := range stages {
		if stage != drop {
			out = append(out, stage)
		}
	}
	return out
}
