package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"openanonymiser/internal/analyzer"
	"openanonymiser/internal/entity"
)

// analyzeRequest is the request body for /analyze and /anonymize.
type analyzeRequest struct {
	Text      string   `json:"text"`
	Entities  []string `json:"entities,omitempty"`
	Language  string   `json:"language,omitempty"`
	NLPEngine string   `json:"nlp_engine,omitempty"`
}

// piiEntity is the transport shape of a detected span.
type piiEntity struct {
	EntityType string   `json:"entity_type"`
	Text       string   `json:"text"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Score      *float64 `json:"score"`
}

type analyzeResponse struct {
	PIIEntities      []piiEntity `json:"pii_entities"`
	TextLength       int         `json:"text_length"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
}

type anonymizeTextResponse struct {
	Text             string `json:"text"`
	Anonymized       string `json:"anonymized"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// handleAnalyze detects PII entities in a text string.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.metrics.AnalyzeCalls.Add(1)
	spans, err := s.analyzer.Analyze(r.Context(), req.Text, req.Entities, req.Language)
	if err != nil {
		s.metrics.ErrorsAnalyze.Add(1)
		s.analyzeError(w, err)
		return
	}
	for _, sp := range spans {
		s.metrics.CountEntity(sp.EntityType)
	}
	s.metrics.ObserveAnalyze(time.Since(start))

	s.log.Infof("analyze", "%d entities found in %dms", len(spans), nowMillis(start))
	s.writeJSON(w, http.StatusOK, analyzeResponse{
		PIIEntities:      toPIIEntities(spans),
		TextLength:       len(req.Text),
		ProcessingTimeMs: nowMillis(start),
	})
}

// handleAnonymizeText substitutes placeholders for detected PII.
func (s *Server) handleAnonymizeText(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.metrics.AnonymizeTextCalls.Add(1)
	anonymized, err := s.analyzer.AnonymizeText(r.Context(), req.Text, req.Entities, req.Language)
	if err != nil {
		s.metrics.ErrorsAnalyze.Add(1)
		s.analyzeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, anonymizeTextResponse{
		Text:             req.Text,
		Anonymized:       anonymized,
		ProcessingTimeMs: nowMillis(start),
	})
}

// analyzeError maps analyzer failures to client responses: validation
// problems are 422, engine failures 502.
func (s *Server) analyzeError(w http.ResponseWriter, err error) {
	if errors.Is(err, analyzer.ErrEmptyText) {
		s.writeError(w, http.StatusUnprocessableEntity, "text must not be empty")
		return
	}
	msg := err.Error()
	if strings.Contains(msg, "unsupported language") {
		s.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	s.log.Errorf("analyze", "%v", err)
	s.writeError(w, http.StatusBadGateway, "analysis failed: "+msg)
}

func toPIIEntities(spans []entity.Span) []piiEntity {
	out := make([]piiEntity, 0, len(spans))
	for _, sp := range spans {
		out = append(out, piiEntity{
			EntityType: sp.EntityType,
			Text:       sp.Text,
			Start:      sp.Start,
			End:        sp.End,
			Score:      sp.Score,
		})
	}
	return out
}

// stringEntity is a span with string-typed positions, the transport shape
// the document anonymization response uses.
type stringEntity struct {
	EntityType string `json:"entity_type"`
	Text       string `json:"text"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Score      string `json:"score,omitempty"`
}

func toStringEntities(spans []entity.Span) []stringEntity {
	out := make([]stringEntity, 0, len(spans))
	for _, sp := range spans {
		e := stringEntity{
			EntityType: sp.EntityType,
			Text:       sp.Text,
			Start:      strconv.Itoa(sp.Start),
			End:        strconv.Itoa(sp.End),
		}
		if v, ok := sp.Score64(); ok {
			e.Score = strconv.FormatFloat(v, 'g', -1, 64)
		}
		out = append(out, e)
	}
	return out
}
