package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"openanonymiser/internal/config"
	"openanonymiser/internal/entity"
)

func TestDetectSendsRequestAndParsesSpans(t *testing.T) {
	var gotReq taggerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tag" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		score := 0.92
		json.NewEncoder(w).Encode(taggerResponse{Spans: []taggerSpan{ //nolint:errcheck
			{EntityType: "PERSON", Start: 0, End: 10, Score: &score, Text: "Jan Jansen"},
		}})
	}))
	defer srv.Close()

	e := NewSpacyEngine(srv.URL, "nl_core_news_md")
	spans, err := e.Detect(context.Background(), "Jan Jansen belt", []string{"PERSON"}, "nl")
	if err != nil {
		t.Fatal(err)
	}

	if gotReq.Model != "nl_core_news_md" || gotReq.Language != "nl" {
		t.Errorf("request fields: %+v", gotReq)
	}
	if len(gotReq.Entities) != 1 || gotReq.Entities[0] != "PERSON" {
		t.Errorf("entity filter not forwarded: %v", gotReq.Entities)
	}

	if len(spans) != 1 {
		t.Fatalf("got %d spans", len(spans))
	}
	s := spans[0]
	if s.EntityType != entity.TypePerson || s.Text != "Jan Jansen" {
		t.Errorf("span wrong: %+v", s)
	}
	if v, ok := s.Score64(); !ok || v != 0.92 {
		t.Errorf("score lost: %v %v", v, ok)
	}
}

func TestDetectNilScorePreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"spans": [{"entity_type": "PERSON", "start": 0, "end": 3, "text": "Jan"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	e := NewSpacyEngine(srv.URL, "m")
	spans, err := e.Detect(context.Background(), "Jan", nil, "nl")
	if err != nil {
		t.Fatal(err)
	}
	if spans[0].Score != nil {
		t.Error("absent score must stay nil, not become zero")
	}
}

func TestDetectNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewSpacyEngine(srv.URL, "m")
	_, err := e.Detect(context.Background(), "tekst", nil, "nl")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDetectMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("niet json")) //nolint:errcheck
	}))
	defer srv.Close()

	e := NewSpacyEngine(srv.URL, "m")
	if _, err := e.Detect(context.Background(), "tekst", nil, "nl"); err == nil {
		t.Fatal("malformed response must fail")
	}
}

func TestDetectUnreachableTagger(t *testing.T) {
	e := NewSpacyEngine("http://127.0.0.1:1", "m")
	if _, err := e.Detect(context.Background(), "tekst", nil, "nl"); err == nil {
		t.Fatal("unreachable tagger must fail")
	}
}

func TestLoadSelectsEngine(t *testing.T) {
	cfg := &config.Config{DefaultNLPEngine: "spacy", TaggerEndpoint: "http://localhost:5001"}
	if _, err := Load(cfg); err != nil {
		t.Errorf("spacy engine: %v", err)
	}

	cfg.DefaultNLPEngine = "transformers"
	if _, err := Load(cfg); err != nil {
		t.Errorf("transformers engine: %v", err)
	}

	cfg.DefaultNLPEngine = "onbekend"
	if _, err := Load(cfg); err == nil {
		t.Error("unknown engine must be rejected")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate([]byte("kort"), 10); got != "kort" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate([]byte("een veel te lange boodschap"), 10); got != "een veel t..." {
		t.Errorf("truncate = %q", got)
	}
}
