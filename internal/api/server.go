// Package api exposes the HTTP interface for the crawl service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/config"
	"github.com/crawlforge/deepcrawl/internal/job"
	"github.com/crawlforge/deepcrawl/internal/metrics"
	"github.com/crawlforge/deepcrawl/internal/progress"
)

// requestTimeout bounds non-streaming handlers.
const requestTimeout = 60 * time.Second

// Server wires HTTP handlers to the job manager and runner.
type Server struct {
	router      chi.Router
	manager     *job.Manager
	runner      *job.Runner
	broadcaster *progress.Broadcaster
	cfg         config.CrawlerConfig
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	manager *job.Manager,
	runner *job.Runner,
	broadcaster *progress.Broadcaster,
	cfg config.CrawlerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager:     manager,
		runner:      runner,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(timeoutMiddleware(requestTimeout)).Post("/crawl", s.startCrawl)
		r.With(timeoutMiddleware(requestTimeout)).Post("/crawl-many", s.startCrawlMany)
		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.With(timeoutMiddleware(requestTimeout)).Get("/status", s.getJobStatus)
			r.With(timeoutMiddleware(requestTimeout)).Get("/result", s.getJobResult)
			r.With(timeoutMiddleware(requestTimeout)).Delete("/", s.deleteJob)
			// The event stream stays open as long as the job lives, so it
			// bypasses the request timeout.
			r.Get("/events", s.streamJobEvents)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type crawlRequest struct {
	URL            string   `json:"url"`
	URLs           []string `json:"urls"`
	Sitemap        bool     `json:"use_sitemap"`
	MaxDepth       *int     `json:"max_depth"`
	MaxPages       *int     `json:"max_pages"`
	Concurrency    *int     `json:"max_concurrent_requests"`
	AllowedDomains []string `json:"allowed_domains"`
	Model          string   `json:"model"`
	EmbeddingModel string   `json:"embedding_model"`
	SystemPrompt   string   `json:"system_prompt"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	req.URLs = nil
	s.launchJob(w, req)
}

func (s *Server) startCrawlMany(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "urls are required")
		return
	}
	req.URL = ""
	req.Sitemap = false
	s.launchJob(w, req)
}

// launchJob registers the job, kicks off the run detached from the request
// context, and answers 202 with the job id.
func (s *Server) launchJob(w http.ResponseWriter, req crawlRequest) {
	runReq := s.toRunRequest(req)
	t := s.manager.Create(runReq.MaxPages)

	go func() {
		s.runner.Run(context.Background(), t, runReq)
		s.manager.Finish(t.ID(), t.Snapshot().Status)
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": t.ID().String(),
		"status": string(job.StatusPending),
	})
}

func (s *Server) toRunRequest(req crawlRequest) job.Request {
	return job.Request{
		URL:            req.URL,
		URLs:           req.URLs,
		Sitemap:        req.Sitemap,
		MaxDepth:       valueOrDefault(req.MaxDepth, s.cfg.MaxDepth),
		MaxPages:       valueOrDefault(req.MaxPages, s.cfg.MaxPages),
		Concurrency:    valueOrDefault(req.Concurrency, s.cfg.Concurrency),
		AllowedDomains: req.AllowedDomains,
		Model:          req.Model,
		EmbeddingModel: req.EmbeddingModel,
		SystemPrompt:   req.SystemPrompt,
	}
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, t.Snapshot())
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	snap := t.Snapshot()
	if snap.Status != job.StatusCompleted {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("job is %s, result available once completed", snap.Status))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": snap.ID.String(),
		"pages":  snap.Result,
	})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.manager.Delete(jobID); err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String(), "status": "deleted"})
}

// streamJobEvents serves the job's progress feed as server-sent events. The
// stream ends when the job is disposed or the client disconnects.
func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.broadcaster.Subscribe(t.ID())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Warn("event marshal failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*job.Tracker, bool) {
	jobID, err := parseJobID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	t, err := s.manager.Get(jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return t, true
}

func parseJobID(r *http.Request) (uuid.UUID, error) {
	jobIDStr := chi.URLParam(r, "job_id")
	if jobIDStr == "" {
		return uuid.UUID{}, errors.New("job_id is required")
	}
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid job_id")
	}
	return jobID, nil
}

func valueOrDefault(ptr *int, def int) int {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
