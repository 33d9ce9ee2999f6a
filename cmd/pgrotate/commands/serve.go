package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/systmms/pgrotate/internal/config"
	pgerrors "github.com/systmms/pgrotate/internal/errors"
	"github.com/systmms/pgrotate/internal/logging"
	"github.com/systmms/pgrotate/internal/rotation"
)

const shutdownGrace = 10 * time.Second

// NewServeCommand creates the serve command: an HTTP harness that
// accepts rotation events on /invoke and exposes Prometheus metrics.
func NewServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rotation events over HTTP",
		Long: `Run an HTTP server that accepts rotation events.

POST /invoke takes the same JSON event the rotation trigger delivers
(Step, SecretId, ClientRequestToken) and runs that step. Metrics are
exposed for Prometheus scraping, and /health answers liveness probes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Logger.Debug("Loaded %s", cfg)

			rotator, err := buildRotator(cmd.Context(), cfg,
				rotation.WithMetrics(rotation.NewMetrics()))
			if err != nil {
				return fmt.Errorf("failed to build rotator: %w", err)
			}

			server := &http.Server{
				Addr:         cfg.ListenAddr(),
				Handler:      newServeMux(rotator, cfg.Logger, cfg.MetricsPath()),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				cfg.Logger.Info("Listening on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			cfg.Logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	return cmd
}

type invokeResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// newServeMux builds the handler tree for serve mode.
func newServeMux(rotator *rotation.Rotator, logger *logging.Logger, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/invoke", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, invokeResponse{Status: "error", Error: "use POST"})
			return
		}

		var req rotation.Request
		decoder := json.NewDecoder(r.Body)
		if err := decoder.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, invokeResponse{Status: "error", Error: err.Error()})
			return
		}

		if err := rotator.Handle(r.Context(), req); err != nil {
			logger.Error("Step %s failed for secret %s: %v", req.Step, req.SecretID, err)
			writeJSON(w, statusForError(err), invokeResponse{Status: "error", Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, invokeResponse{Status: "ok"})
	})

	return mux
}

// statusForError maps precondition failures to client errors; anything
// else is a server-side failure.
func statusForError(err error) int {
	var (
		notEnabled   pgerrors.RotationNotEnabledError
		unknown      pgerrors.UnknownVersionError
		invalidStage pgerrors.InvalidStageError
		invalidStep  pgerrors.InvalidStepError
		notFound     pgerrors.NotFoundError
	)
	switch {
	case errors.As(err, &notEnabled),
		errors.As(err, &unknown),
		errors.As(err, &invalidStage),
		errors.As(err, &invalidStep):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body invokeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
