package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/runner"
	"github.com/sells-group/quality-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the evaluation API. Factored out of serveCmd so handlers
// can be exercised with httptest.
func newRouter(env *engineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/evaluation/score", handleScore(env))
	r.Post("/evaluation/run", handleRun(env))

	r.Route("/executions", func(r chi.Router) {
		r.Get("/", handleListExecutions(env))
		r.Get("/{id}", handleGetExecution(env))
		r.Post("/{id}/cancel", handleCancelExecution(env))
	})

	return r
}

// handleScore evaluates a single metrics bundle without touching any project
// or execution record.
func handleScore(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var bundle model.MetricsBundle
		if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, env.evaluator.Evaluate(bundle))
	}
}

// handleRun runs a full evaluation loop from caller-supplied metric bundles
// and returns the outcome once the loop finishes.
func handleRun(env *engineEnv) http.HandlerFunc {
	type runRequest struct {
		ProjectID     string                `json:"project_id"`
		EventID       string                `json:"event_id,omitempty"`
		MaxIterations int                   `json:"max_iterations,omitempty"`
		Tags          []string              `json:"tags,omitempty"`
		Metrics       []model.MetricsBundle `json:"metrics"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ProjectID == "" {
			writeError(w, http.StatusBadRequest, "project_id is required")
			return
		}
		if len(req.Metrics) == 0 {
			writeError(w, http.StatusBadRequest, "metrics must contain at least one bundle")
			return
		}

		outcome, err := env.controller.RunIterations(r.Context(), req.ProjectID, req.Metrics, req.MaxIterations, runner.RunOptions{
			EventID: req.EventID,
			Tags:    req.Tags,
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "project not found")
				return
			}
			zap.L().Error("evaluation run failed",
				zap.String("project_id", req.ProjectID),
				zap.Error(err),
			)
			if outcome != nil {
				// Evaluation finished; only the durable commit failed. Hand
				// the caller the computed outcome so retrying persistence
				// does not mean re-running the loop.
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":   "evaluation completed but persisting the outcome failed",
					"outcome": outcome,
				})
				return
			}
			writeError(w, http.StatusInternalServerError, "evaluation run failed")
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleListExecutions(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ExecutionFilter{
			ProjectID: q.Get("project_id"),
			Status:    model.ExecutionStatus(q.Get("status")),
			Limit:     50,
		}
		if v := q.Get("limit"); v != "" {
			var limit int
			if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = limit
		}

		recs, err := env.store.ListExecutions(r.Context(), filter)
		if err != nil {
			zap.L().Error("list executions failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list executions failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"executions": recs})
	}
}

func handleGetExecution(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := env.store.GetExecution(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "execution not found")
				return
			}
			zap.L().Error("get execution failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get execution failed")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleCancelExecution marks an execution cancelled. An in-flight loop picks
// the change up before its next round.
func handleCancelExecution(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := env.store.GetExecution(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "execution not found")
				return
			}
			zap.L().Error("get execution failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get execution failed")
			return
		}

		if err := rec.Cancel(); err != nil {
			writeError(w, http.StatusConflict, fmt.Sprintf("cannot cancel execution in status %s", rec.Status))
			return
		}
		if err := env.store.UpdateExecution(r.Context(), rec); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				writeError(w, http.StatusConflict, "execution was updated concurrently, retry")
				return
			}
			zap.L().Error("persist cancellation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "persist cancellation failed")
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
