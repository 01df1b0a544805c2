// Package api exposes the HTTP surface: LLM config, direct chat, page
// extraction, command CRUD/run, automation CRUD and the result log.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sylvia_browser_agent/internal/appinfo"
	"sylvia_browser_agent/internal/automation"
	"sylvia_browser_agent/internal/command"
	"sylvia_browser_agent/internal/llm"
)

// Options wires the server to the rest of the application.
type Options struct {
	Client    *llm.Client
	Registry  *command.Registry
	Runner    *command.Runner
	Store     automation.Store
	Results   automation.ResultLog
	Scheduler *automation.Scheduler
	Hub       *automation.Hub
	Logger    *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	client    *llm.Client
	registry  *command.Registry
	runner    *command.Runner
	store     automation.Store
	results   automation.ResultLog
	scheduler *automation.Scheduler
	hub       *automation.Hub
	logger    *slog.Logger

	server *http.Server
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		client:    opts.Client,
		registry:  opts.Registry,
		runner:    opts.Runner,
		store:     opts.Store,
		results:   opts.Results,
		scheduler: opts.Scheduler,
		hub:       opts.Hub,
		logger:    logger,
	}
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/config/llm", s.handleGetLLMConfig)
	mux.HandleFunc("POST /api/config/llm", s.handleUpdateLLMConfig)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/page/summary", s.handlePageSummary)
	mux.HandleFunc("POST /api/page/tasks", s.handlePageTasks)
	mux.HandleFunc("POST /api/page/concept", s.handlePageConcept)

	mux.HandleFunc("GET /api/commands", s.handleListCommands)
	mux.HandleFunc("POST /api/commands/{slug}/run", s.handleRunCommand)
	mux.HandleFunc("GET /api/commands/custom", s.handleListCustomCommands)
	mux.HandleFunc("POST /api/commands/custom", s.handleSaveCustomCommand)
	mux.HandleFunc("DELETE /api/commands/custom/{slug}", s.handleDeleteCustomCommand)

	mux.HandleFunc("GET /api/automations", s.handleListAutomations)
	mux.HandleFunc("POST /api/automations", s.handleSaveAutomation)
	mux.HandleFunc("GET /api/automations/{id}", s.handleGetAutomation)
	mux.HandleFunc("DELETE /api/automations/{id}", s.handleDeleteAutomation)
	mux.HandleFunc("POST /api/automations/{id}/run", s.handleRunAutomation)

	mux.HandleFunc("GET /api/automations/results", s.handleQueryResults)
	mux.HandleFunc("DELETE /api/automations/results", s.handleClearResults)
	mux.HandleFunc("GET /api/automations/results/stream", s.handleResultStream)
	mux.HandleFunc("GET /api/automations/results/{id}", s.handleGetResult)
	mux.HandleFunc("GET /api/automations/results/{id}/html", s.handleGetResultHTML)

	return s.withLogging(mux)
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // long-poll friendly for the stream endpoint
	}
	s.logger.Info("starting api server", "port", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": appinfo.Name,
		"version": appinfo.Version,
	})
}

func (s *Server) handleGetLLMConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"config": s.client.Defaults(),
	})
}

func (s *Server) handleUpdateLLMConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider    string   `json:"provider"`
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated := s.client.UpdateDefaults(req.Provider, req.Model, req.Temperature)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"config": updated,
	})
}

// decodeJSON decodes the request body into v. An empty body is treated as
// an empty object so handlers with all-optional fields accept bare POSTs.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write json response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": msg,
	})
}
