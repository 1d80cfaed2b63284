package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/news-relay/internal/config"
	"github.com/DeafMist/news-relay/internal/metrics"
	"github.com/DeafMist/news-relay/internal/models"
	"github.com/DeafMist/news-relay/internal/query"
)

type newsService interface {
	List(ctx context.Context, p query.Params) (query.Page, error)
	Get(ctx context.Context, id string) (models.Article, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	news  newsService
	store pinger
}

type errorResponse struct {
	Error string `json:"error"`
}

type pageResponse struct {
	Content       []models.WireArticle `json:"content"`
	TotalElements int                  `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/news", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	field, desc := query.ParseSort(q.Get("sort"))
	params := query.Params{
		Field: field,
		Desc:  desc,
		Page:  parsePage(q.Get("page")),
		Size:  clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
	}

	page, err := s.news.List(ctx, params)
	if err != nil {
		s.writeError(w, err)
		return
	}

	content := make([]models.WireArticle, 0, len(page.Items))
	for _, a := range page.Items {
		content = append(content, models.ToWire(a))
	}

	writeJSON(w, http.StatusOK, pageResponse{
		Content:       content,
		TotalElements: page.Total,
		TotalPages:    (page.Total + params.Size - 1) / params.Size,
		Page:          params.Page,
		Size:          params.Size,
	})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	a, err := s.news.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ToWire(a))
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrInvalidPage):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrStoreUnavailable):
		s.log.Error("store unavailable", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: query.ErrStoreUnavailable.Error()})
	default:
		s.log.Error("query failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func parsePage(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
