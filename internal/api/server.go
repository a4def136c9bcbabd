// Package api exposes a recovery Helper over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-query-recovery/internal/recovery"
)

// maxBodyBytes bounds a recover request body.
const maxBodyBytes = 1 << 20

// RecoverRequest is the body of POST /api/recover.
type RecoverRequest struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// ValuesResponse is the body returned by GET /api/values/{table}/{column}.
type ValuesResponse struct {
	Table  string   `json:"table"`
	Column string   `json:"column"`
	Values []string `json:"values"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves one Helper. Its cache is shared by every request.
type Server struct {
	helper *recovery.Helper
	logger *zap.Logger
}

func NewServer(helper *recovery.Helper, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{helper: helper, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/recover", s.handleRecover)
		r.Get("/columns", s.handleColumns)
		r.Get("/values/{table}/{column}", s.handleValues)
		r.Delete("/cache", s.handleClearCache)
		r.Delete("/cache/{table}/{column}", s.handleInvalidate)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is empty")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := s.helper.Recover(r.Context(), req.Query, req.Error)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	refs := s.helper.Extractor().Refs()
	if refs == nil {
		refs = []recovery.ColumnRef{}
	}
	writeJSON(w, http.StatusOK, map[string][]recovery.ColumnRef{"columns": refs})
}

// registeredRef returns the column named by the URL when a recovery rule
// covers it. Other columns are never read from the store.
func (s *Server) registeredRef(r *http.Request) (recovery.ColumnRef, bool) {
	ref := recovery.ColumnRef{
		Table:  chi.URLParam(r, "table"),
		Column: chi.URLParam(r, "column"),
	}
	for _, known := range s.helper.Extractor().Refs() {
		if known == ref {
			return ref, true
		}
	}
	return ref, false
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.registeredRef(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown column: "+ref.Key())
		return
	}

	lookup := s.helper.Cache().Lookup(r.Context(), ref)
	if lookup.Status == recovery.FetchFailed {
		s.logger.Warn("value lookup failed", zap.String("column", ref.Key()), zap.Error(lookup.Err))
		writeError(w, http.StatusBadGateway, lookup.Err.Error())
		return
	}

	values := lookup.Values
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, ValuesResponse{Table: ref.Table, Column: ref.Column, Values: values})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.helper.Cache().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.registeredRef(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown column: "+ref.Key())
		return
	}
	s.helper.Cache().Invalidate(ref)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
