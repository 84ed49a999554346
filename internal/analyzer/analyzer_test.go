package analyzer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"openanonymiser/internal/entity"
	"openanonymiser/internal/logger"
	"openanonymiser/internal/patterns"
)

// fakeEngine returns canned spans, or an error, without network access.
type fakeEngine struct {
	spans []entity.Span
	err   error
}

func (f *fakeEngine) Detect(_ context.Context, _ string, _ []string, _ string) ([]entity.Span, error) {
	return f.spans, f.err
}

func span(typ string, start, end int, text string, score float64) entity.Span {
	return entity.Span{EntityType: typ, Start: start, End: end, Text: text, Score: entity.ScoreOf(score)}
}

func newTestAnalyzer(engine *fakeEngine) *Analyzer {
	log := logger.New("TEST", "error")
	log.SetOutput(io.Discard)
	return New(engine, patterns.NewSet(nil), []string{entity.TypePerson, entity.TypeEmail}, "nl", log)
}

func TestAnalyzeEmptyText(t *testing.T) {
	a := newTestAnalyzer(&fakeEngine{})
	if _, err := a.Analyze(context.Background(), "", nil, ""); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestAnalyzeUnsupportedLanguage(t *testing.T) {
	a := newTestAnalyzer(&fakeEngine{})
	_, err := a.Analyze(context.Background(), "tekst", nil, "de")
	if err == nil || !strings.Contains(err.Error(), "unsupported language") {
		t.Fatalf("expected unsupported language error, got %v", err)
	}
}

func TestAnalyzeEngineFailureIsFatal(t *testing.T) {
	a := newTestAnalyzer(&fakeEngine{err: errors.New("tagger down")})
	if _, err := a.Analyze(context.Background(), "mail test@example.com", nil, ""); err == nil {
		t.Fatal("engine failure must fail the analysis")
	}
}

func TestAnalyzeMergesEngineAndPatterns(t *testing.T) {
	text := "Jan Jansen woont in Amsterdam, mail jan@voorbeeld.nl"
	nameStart := strings.Index(text, "Jan Jansen")
	a := newTestAnalyzer(&fakeEngine{spans: []entity.Span{
		span(entity.TypePerson, nameStart, nameStart+len("Jan Jansen"), "Jan Jansen", 0.9),
	}})

	spans, err := a.Analyze(context.Background(), text, nil, "nl")
	if err != nil {
		t.Fatal(err)
	}

	var gotPerson, gotEmail bool
	for _, s := range spans {
		switch s.EntityType {
		case entity.TypePerson:
			gotPerson = true
		case entity.TypeEmail:
			gotEmail = true
		}
	}
	if !gotPerson {
		t.Error("NER person span missing from merged result")
	}
	if !gotEmail {
		t.Error("pattern email span missing from merged result")
	}
}

func TestAnalyzeDeduplicatesFirstWins(t *testing.T) {
	text := "mail jan@voorbeeld.nl"
	start := strings.Index(text, "jan@")
	end := start + len("jan@voorbeeld.nl")

	// Engine reports the identical span the EMAIL pattern will also find,
	// with a distinctive score. The engine copy must survive.
	a := newTestAnalyzer(&fakeEngine{spans: []entity.Span{
		span(entity.TypeEmail, start, end, "jan@voorbeeld.nl", 0.99),
	}})

	spans, err := a.Analyze(context.Background(), text, nil, "")
	if err != nil {
		t.Fatal(err)
	}

	var count int
	for _, s := range spans {
		if s.EntityType == entity.TypeEmail && s.Start == start && s.End == end {
			count++
			if v, _ := s.Score64(); v != 0.99 {
				t.Errorf("deduplication kept the wrong span, score %v", v)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one email span, got %d", count)
	}
}

func TestAnalyzeRequestedTypesFilter(t *testing.T) {
	text := "Jan, mail jan@voorbeeld.nl, bel 06-12345678"
	a := newTestAnalyzer(&fakeEngine{spans: []entity.Span{
		span(entity.TypePerson, 0, 3, "Jan", 0.8),
	}})

	spans, err := a.Analyze(context.Background(), text, []string{entity.TypeEmail}, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range spans {
		if s.EntityType != entity.TypeEmail {
			t.Errorf("filter leaked a %s span", s.EntityType)
		}
	}
	if len(spans) == 0 {
		t.Error("requested email spans missing")
	}
}

func TestAnonymizeTextSubstitution(t *testing.T) {
	text := "Jan Jansen, mail jan@voorbeeld.nl"
	a := newTestAnalyzer(&fakeEngine{spans: []entity.Span{
		span(entity.TypePerson, 0, 10, "Jan Jansen", 0.9),
	}})

	out, err := a.AnonymizeText(context.Background(), text, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<PERSON>") {
		t.Errorf("person placeholder missing: %q", out)
	}
	if !strings.Contains(out, "<EMAIL>") {
		t.Errorf("email placeholder missing: %q", out)
	}
	if strings.Contains(out, "jan@voorbeeld.nl") {
		t.Errorf("email still present: %q", out)
	}
}

func TestAnonymizeTextOverlapResolution(t *testing.T) {
	text := "Jan Jansen in Amsterdam"
	// Two overlapping engine spans: the longer one starting earlier wins.
	a := newTestAnalyzer(&fakeEngine{spans: []entity.Span{
		span(entity.TypePerson, 0, 10, "Jan Jansen", 0.9),
		span(entity.TypeLocation, 4, 10, "Jansen", 0.5),
	}})

	out, err := a.AnonymizeText(context.Background(), text, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "<PERSON> in Amsterdam" {
		t.Errorf("overlap resolution produced %q", out)
	}
}

func TestResolveOverlapsKeepsDisjointSpans(t *testing.T) {
	spans := []entity.Span{
		span(entity.TypePerson, 10, 20, "x", 0.5),
		span(entity.TypeEmail, 0, 5, "y", 0.5),
	}
	accepted := resolveOverlaps(spans)
	if len(accepted) != 2 {
		t.Fatalf("disjoint spans must both survive, got %d", len(accepted))
	}
}

func TestUniquePairs(t *testing.T) {
	spans := []entity.Span{
		span(entity.TypePerson, 0, 3, "Jan", 0.9),
		span(entity.TypePerson, 20, 23, "Jan", 0.8),
		span(entity.TypeEmail, 5, 10, "a@b.nl", 0.6),
	}
	pairs := UniquePairs(spans)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 unique pairs, got %d", len(pairs))
	}
	if pairs[0].Text != "Jan" || pairs[1].Text != "a@b.nl" {
		t.Errorf("pairs out of first-seen order: %+v", pairs)
	}
}
