// Package server exposes the anonymisation service over HTTP.
//
// Endpoints:
//
//	GET  /status                            - health, config summary, metrics snapshot
//	POST /api/v1/analyze                    - detect PII entities in text
//	POST /api/v1/anonymize                  - placeholder-substitute PII in text
//	POST /api/v1/documents/upload           - upload PDFs, analyze, persist metadata
//	POST /api/v1/documents/{id}/anonymize   - redact a stored document
//	POST /api/v1/documents/deanonymize      - restore an anonymized PDF (download)
//
// Document endpoints require basic auth; analysis endpoints do not,
// matching the historical service surface.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"openanonymiser/internal/analyzer"
	"openanonymiser/internal/config"
	"openanonymiser/internal/logger"
	"openanonymiser/internal/metrics"
	"openanonymiser/internal/pdf"
	"openanonymiser/internal/store"
)

// supportedUploadExtensions lists the file extensions accepted for upload.
var supportedUploadExtensions = []string{"pdf"}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	log      *logger.Logger
	analyzer *analyzer.Analyzer
	engine   *pdf.Engine
	docs     store.Store
	entities *store.EntityCache
	metrics  *metrics.Metrics
	mux      *http.ServeMux
}

// New wires the server over its collaborators.
func New(cfg *config.Config, log *logger.Logger, an *analyzer.Analyzer, engine *pdf.Engine, docs store.Store, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log,
		analyzer: an,
		engine:   engine,
		docs:     docs,
		entities: store.NewEntityCache(),
		metrics:  m,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /api/v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/v1/anonymize", s.handleAnonymizeText)
	s.mux.HandleFunc("POST /api/v1/documents/upload", s.withAuth(s.handleUpload))
	s.mux.HandleFunc("POST /api/v1/documents/{id}/anonymize", s.withAuth(s.handleAnonymizeDocument))
	s.mux.HandleFunc("POST /api/v1/documents/deanonymize", s.withAuth(s.handleDeanonymize))
	return s
}

// ServeHTTP dispatches API requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// withAuth guards a handler with basic auth, compared in constant time.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.BasicAuthUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.BasicAuthPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="openanonymiser"`)
			s.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// handleStatus reports health and the metrics snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"language":   s.cfg.DefaultLanguage,
		"nlp_engine": s.cfg.DefaultNLPEngine,
		"metrics":    s.metrics.Snapshot(),
	})
}

// validExtension reports whether filename carries a supported extension.
func validExtension(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, e := range supportedUploadExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func extensionError() string {
	return fmt.Sprintf("Only files with the following extensions are supported: %s",
		strings.Join(supportedUploadExtensions, ", "))
}

// writeJSON writes v as a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("write_response", "encode: %v", err)
	}
}

// writeError writes a JSON error body with a specific, actionable message.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// nowMillis measures elapsed request time for response metadata.
func nowMillis(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
