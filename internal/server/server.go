// Package server exposes the dispatcher over HTTP: a streaming chat
// endpoint, transcript reads, job management, env uploads, and runtime
// stats.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/dispatch"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/envstore"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/jobs"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/transcript"
)

// maxEnvUploadBytes caps the accepted size of an env upload.
const maxEnvUploadBytes = 64 << 10

// TurnHandler processes one conversational turn into a fragment stream.
type TurnHandler interface {
	HandleTurn(ctx context.Context, conversationID, principalID, text string) (<-chan dispatch.Fragment, error)
}

// HistoryStore is the transcript read/delete surface the server exposes.
type HistoryStore interface {
	Messages(ctx context.Context, conversationID string, activeOnly bool) ([]models.Message, error)
	LatestByOwner(ctx context.Context, userID string) ([]models.ChatSummary, error)
	SoftDelete(ctx context.Context, conversationID string) error
}

// JobRunner is the job management surface the server exposes.
type JobRunner interface {
	List() []jobs.Info
	Lookup(jobID string) (jobs.Info, bool)
	Cancel(jobID string) error
}

// Server wraps the HTTP server with dependencies and lifecycle management.
type Server struct {
	dispatcher TurnHandler
	history    HistoryStore
	runner     JobRunner
	envs       *envstore.Store
	sessions   *session.Store
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Collector

	http *http.Server
}

// New assembles the server on addr. sessionTTL > 0 enables a background
// sweep of expired session state.
func New(addr string, d TurnHandler, history HistoryStore, runner JobRunner, envs *envstore.Store, sessions *session.Store, sessionTTL time.Duration, logger *slog.Logger, mc *metrics.Collector) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatcher: d,
		history:    history,
		runner:     runner,
		envs:       envs,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     logger,
		metrics:    mc,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(logger)(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/ask", s.handleAsk)
	mux.HandleFunc("GET /api/chat/ws", s.handleAskWS)
	mux.HandleFunc("GET /api/chat/history/{id}", s.handleHistory)
	mux.HandleFunc("GET /api/chat/all", s.handleChats)
	mux.HandleFunc("POST /api/chat/delete/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/jobs/{id}/config", s.handleJobConfig)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleJobCancel)
	mux.HandleFunc("POST /api/upload-env", s.handleUploadEnv)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run starts serving and blocks until ctx is cancelled or the listener
// fails. Shutdown drains in-flight requests for up to 10 seconds.
func (s *Server) Run(ctx context.Context) error {
	if s.sessionTTL > 0 {
		go s.sweepSessions(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(s.sessionTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

// principal extracts the pre-authenticated principal id. An upstream
// gateway owns authentication; this server only trusts its header.
func principal(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

type askRequest struct {
	ConversationID string `json:"chat_id,omitempty"`
	Text           string `json:"message"`
}

// handleAsk streams turn fragments as newline-delimited JSON. The first
// fragment carries the resolved conversation id so callers learn
// server-assigned ids before the body completes.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	fragments, err := s.dispatcher.HandleTurn(r.Context(), req.ConversationID, pid, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for f := range fragments {
		if err := enc.Encode(f); err != nil {
			// client went away; the dispatcher observes ctx cancellation
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if principal(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	conversationID := r.PathValue("id")

	activeOnly := r.URL.Query().Get("include_deleted") != "true"
	msgs, err := s.history.Messages(r.Context(), conversationID, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": conversationID, "messages": msgs})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	chats, err := s.history.LatestByOwner(r.Context(), pid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if principal(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	conversationID := r.PathValue("id")
	if err := s.history.SoftDelete(r.Context(), conversationID); err != nil {
		if errors.Is(err, transcript.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": conversationID})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	all := s.runner.List()
	mine := make([]jobs.Info, 0, len(all))
	for _, info := range all {
		if info.PrincipalID == pid {
			mine = append(mine, info)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": mine})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	// Jobs of other principals read as absent rather than forbidden.
	info, ok := s.runner.Lookup(r.PathValue("id"))
	if !ok || info.PrincipalID != pid {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleJobConfig serves the generated configuration file of a finished
// job as plain text.
func (s *Server) handleJobConfig(w http.ResponseWriter, r *http.Request) {
	if principal(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	info, ok := s.runner.Lookup(r.PathValue("id"))
	if !ok || info.PrincipalID != principal(r) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if info.ResultRef == "" {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, no config available", info.Status))
		return
	}
	content, err := os.ReadFile(info.ResultRef)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read config failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	jobID := r.PathValue("id")
	info, ok := s.runner.Lookup(jobID)
	if !ok || info.PrincipalID != pid {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := s.runner.Cancel(jobID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": jobID})
}

func (s *Server) handleUploadEnv(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > maxEnvUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("env upload exceeds %d bytes", maxEnvUploadBytes))
		return
	}
	if err := s.envs.Save(pid, body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": true, "bytes": len(body)})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
