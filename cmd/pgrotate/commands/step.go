package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/pgrotate/internal/config"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
	"github.com/systmms/pgrotate/internal/rotation"
)

// NewStepCommand creates the step command: run one rotation step for
// one secret version, the way the rotation trigger would invoke it.
func NewStepCommand(cfg *config.Config) *cobra.Command {
	var (
		secretID string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "step <createSecret|setSecret|testSecret|finishSecret>",
		Short: "Run a single rotation step",
		Long: `Run one step of the rotation protocol against a secret version.

The step only proceeds when rotation is enabled on the secret and the
token names a version staged AWSPENDING. Steps are idempotent: re-running
a completed step is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseStepRequest(args[0], secretID, token)
			if err != nil {
				return err
			}

			if err := cfg.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Logger.Debug("Loaded %s", cfg)

			rotator, err := buildRotator(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to build rotator: %w", err)
			}

			if err := rotator.Handle(cmd.Context(), req); err != nil {
				return err
			}

			cfg.Logger.Info("Step %s completed for secret %s", req.Step, req.SecretID)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "ARN or name of the secret to rotate")
	cmd.Flags().StringVar(&token, "token", "", "Client request token of the pending version")

	return cmd
}

// parseStepRequest validates the step name and required flags before
// any client is constructed.
func parseStepRequest(stepArg, secretID, token string) (rotation.Request, error) {
	var step rotation.Step
	if err := step.UnmarshalText([]byte(stepArg)); err != nil {
		return rotation.Request{}, pgerrors.UserError{
			Message:    fmt.Sprintf("Unknown rotation step '%s'", stepArg),
			Suggestion: "Use one of: createSecret, setSecret, testSecret, finishSecret",
			Err:        err,
		}
	}

	if secretID == "" {
		return rotation.Request{}, pgerrors.UserError{
			Message:    "Missing required flag --secret-id",
			Suggestion: "Pass the ARN or name of the secret to rotate",
		}
	}

	if token == "" {
		return rotation.Request{}, pgerrors.UserError{
			Message:    "Missing required flag --token",
			Suggestion: "Pass the client request token of the pending version",
		}
	}

	return rotation.Request{
		Step:               step,
		SecretID:           secretID,
		ClientRequestToken: token,
	}, nil
}
