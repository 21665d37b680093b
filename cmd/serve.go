package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
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

	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/pipeline"
	"github.com/ridgepoint-claims/claimflow/internal/resilience"
	"github.com/ridgepoint-claims/claimflow/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the estimate pipeline HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
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

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", handleCreateRun(env))
		r.Get("/runs", handleListRuns(env))
		r.Get("/runs/{runID}", handleGetRun(env))

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/parse-measurement", handleParseMeasurement(env))
			r.Post("/photo-findings", handlePhotoFindings(env))
			r.Post("/classify-scope", handleClassifyScope(env))
			r.Post("/generate-estimate", handleGenerateEstimate(env))
		})
	})

	return r
}

// -- full pipeline --

type createRunRequest struct {
	Claim          model.ClaimContext `json:"claim"`
	MeasurementPDF string             `json:"measurement_pdf,omitempty"` // base64
	Filename       string             `json:"filename,omitempty"`
	ResumeRunID    string             `json:"resume_run_id,omitempty"`
}

func handleCreateRun(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
			return
		}

		in := pipeline.RunInput{
			Claim:              req.Claim,
			MeasurementPDFName: req.Filename,
			ResumeRunID:        req.ResumeRunID,
		}
		if req.MeasurementPDF != "" {
			pdf, err := base64.StdEncoding.DecodeString(req.MeasurementPDF)
			if err != nil {
				writeError(w, http.StatusBadRequest, eris.New("measurement_pdf is not valid base64"))
				return
			}
			in.MeasurementPDF = pdf
		}

		run, err := env.Pipeline.Run(r.Context(), in)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeData(w, http.StatusOK, run)
	}
}

func handleListRuns(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.RunFilter{
			Status:   model.RunStatus(q.Get("status")),
			ClaimRef: q.Get("claim"),
		}
		if limit := q.Get("limit"); limit != "" {
			_, _ = fmt.Sscanf(limit, "%d", &filter.Limit)
		}

		runs, err := env.Store.ListRuns(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeData(w, http.StatusOK, runs)
	}
}

func handleGetRun(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := env.Store.GetRun(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeData(w, http.StatusOK, run)
	}
}

// -- standalone stage endpoints --

type parseMeasurementRequest struct {
	MeasurementPDFBase64 string `json:"measurement_pdf_base64"`
	MeasurementPDFName   string `json:"measurement_pdf_name,omitempty"`
}

func handleParseMeasurement(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req parseMeasurementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
			return
		}
		pdf, err := base64.StdEncoding.DecodeString(req.MeasurementPDFBase64)
		if err != nil || len(pdf) == 0 {
			writeError(w, http.StatusBadRequest, eris.New("measurement_pdf_base64 must be non-empty base64"))
			return
		}

		report, _, err := pipeline.ParseMeasurement(r.Context(), pdf, req.MeasurementPDFName, env.OCR, env.AI, cfg.Anthropic)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeData(w, http.StatusOK, report)
	}
}

func handlePhotoFindings(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clm, ok := decodeClaim(w, r)
		if !ok {
			return
		}
		findings, _, err := pipeline.ExtractFindings(r.Context(), clm, env.AI, cfg.Anthropic, cfg.Pipeline)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeData(w, http.StatusOK, findings)
	}
}

func handleClassifyScope(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clm, ok := decodeClaim(w, r)
		if !ok {
			return
		}
		cls, _, err := pipeline.ClassifyScope(r.Context(), clm, env.AI, cfg.Anthropic, cfg.Pipeline)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeData(w, http.StatusOK, cls)
	}
}

type generateEstimateRequest struct {
	model.ClaimContext
	PipelineID string `json:"pipeline_id,omitempty"`
}

func handleGenerateEstimate(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateEstimateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.New("invalid claim context body"))
			return
		}

		result, _, err := pipeline.GenerateEstimate(r.Context(), req.ClaimContext, env.Catalog, env.AI, cfg.Anthropic)
		if err != nil {
			writePipelineError(w, err)
			return
		}

		// When the caller names a persisted run, write the estimate back so
		// the run record reflects this standalone invocation.
		if req.PipelineID != "" {
			if err := env.Store.UpdateRunContext(r.Context(), req.PipelineID, model.StageGenerateEstimate, req.ClaimContext, nil); err != nil {
				zap.L().Warn("failed to persist claim context for run", zap.String("run_id", req.PipelineID), zap.Error(err))
			}
			if err := env.Store.UpdateRunResult(r.Context(), req.PipelineID, result); err != nil {
				zap.L().Warn("failed to persist estimate for run", zap.String("run_id", req.PipelineID), zap.Error(err))
			}
		}

		writeData(w, http.StatusOK, result)
	}
}

// -- response helpers --

func decodeClaim(w http.ResponseWriter, r *http.Request) (model.ClaimContext, bool) {
	var clm model.ClaimContext
	if err := json.NewDecoder(r.Body).Decode(&clm); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid claim context body"))
		return clm, false
	}
	return clm, true
}

// writePipelineError maps pipeline error classes onto HTTP statuses:
// business-rule violations are client errors, malformed generation output is
// an upstream failure, and transient provider errors invite a retry.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case pipeline.IsInsufficientEvidence(err):
		writeError(w, http.StatusBadRequest, err)
	case pipeline.IsMalformedOutput(err):
		writeError(w, http.StatusBadGateway, err)
	case resilience.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
