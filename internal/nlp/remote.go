package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"openanonymiser/internal/entity"
)

// maxTaggerResponse caps how much of a tagger reply is read. A response
// larger than this is a malfunctioning sidecar, not a big document.
const maxTaggerResponse = 10 << 20 // 10 MB

// RemoteEngine calls a tagger sidecar over HTTP. The sidecar holds the
// loaded model; this client is cheap and stateless.
type RemoteEngine struct {
	url    string
	model  string
	client *http.Client
}

// NewSpacyEngine returns an Engine backed by the fast spaCy tagger.
func NewSpacyEngine(endpoint, model string) *RemoteEngine {
	return newRemote(endpoint, model)
}

// NewTransformersEngine returns an Engine backed by the transformer tagger.
// Same wire contract as the spaCy variant; the sidecar selects the
// pipeline by model name.
func NewTransformersEngine(endpoint, model string) *RemoteEngine {
	return newRemote(endpoint, model)
}

func newRemote(endpoint, model string) *RemoteEngine {
	return &RemoteEngine{
		url:    endpoint + "/api/v1/tag",
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type taggerRequest struct {
	Model    string   `json:"model"`
	Text     string   `json:"text"`
	Entities []string `json:"entities,omitempty"`
	Language string   `json:"language"`
}

type taggerSpan struct {
	EntityType string   `json:"entity_type"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Score      *float64 `json:"score"`
	Text       string   `json:"text"`
}

type taggerResponse struct {
	Spans []taggerSpan `json:"spans"`
}

// Detect sends text to the tagger and converts the reply to spans.
// A transport or decode failure is fatal for the whole analysis; the
// caller propagates it.
func (e *RemoteEngine) Detect(ctx context.Context, text string, filter []string, lang string) ([]entity.Span, error) {
	reqBody, err := json.Marshal(taggerRequest{
		Model:    e.model,
		Text:     text,
		Entities: filter,
		Language: lang,
	})
	if err != nil {
		return nil, fmt.Errorf("nlp: marshal tagger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("nlp: create tagger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nlp: tagger request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTaggerResponse))
	if err != nil {
		return nil, fmt.Errorf("nlp: read tagger response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nlp: tagger returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var tr taggerResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("nlp: parse tagger response: %w", err)
	}

	spans := make([]entity.Span, 0, len(tr.Spans))
	for _, s := range tr.Spans {
		spans = append(spans, entity.Span{
			EntityType: s.EntityType,
			Start:      s.Start,
			End:        s.End,
			Score:      s.Score,
			Text:       s.Text,
		})
	}
	return spans, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
