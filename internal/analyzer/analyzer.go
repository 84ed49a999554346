// Package analyzer merges NER-engine output with the regex pattern
// recognizers into one deduplicated entity list, and renders the
// placeholder-substituted form of a text.
//
// Detection runs in two stages:
//  1. The NER engine over the full text, with the requested entity-type
//     filter applied at inference time. An engine failure is fatal: no
//     text was analyzed, the caller must retry or report.
//  2. All pattern recognizers over the full, unfiltered text. Patterns are
//     cheap and mutually independent; filtering afterward avoids
//     recognizer-specific partial filter support.
//
// NER results precede pattern results in the merge, so when both claim the
// identical (start, end, type) span the NER span, and its score, wins.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"openanonymiser/internal/entity"
	"openanonymiser/internal/logger"
	"openanonymiser/internal/nlp"
	"openanonymiser/internal/patterns"
)

// ErrEmptyText is returned when there is nothing to analyze.
var ErrEmptyText = errors.New("analyzer: empty text")

// Analyzer is the entity resolution engine. Construct once and share; it
// holds no per-call state.
type Analyzer struct {
	engine          nlp.Engine
	set             *patterns.Set
	defaultEntities []string
	language        string
	log             *logger.Logger
}

// New builds an Analyzer over an injected NER engine and recognizer set.
func New(engine nlp.Engine, set *patterns.Set, defaultEntities []string, language string, log *logger.Logger) *Analyzer {
	return &Analyzer{
		engine:          engine,
		set:             set,
		defaultEntities: defaultEntities,
		language:        language,
		log:             log,
	}
}

// Analyze returns the deduplicated entity spans found in text.
//
// requested, when non-empty, restricts the result to those entity types;
// empty means the configured default set (NER is filtered at call time,
// pattern output is not post-filtered). lang must match the configured
// language; empty selects it.
func (a *Analyzer) Analyze(ctx context.Context, text string, requested []string, lang string) ([]entity.Span, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if lang == "" {
		lang = a.language
	}
	if lang != a.language {
		return nil, fmt.Errorf("analyzer: unsupported language %q (supported: %s)", lang, a.language)
	}

	nerFilter := requested
	if len(nerFilter) == 0 {
		nerFilter = a.defaultEntities
	}

	nerSpans, err := a.engine.Detect(ctx, text, nerFilter, lang)
	if err != nil {
		return nil, fmt.Errorf("analyzer: ner engine: %w", err)
	}

	patternSpans := a.set.FindAll(text)

	all := make([]entity.Span, 0, len(nerSpans)+len(patternSpans))
	all = append(all, nerSpans...)
	all = append(all, patternSpans...)

	if len(requested) > 0 {
		all = filterTypes(all, requested)
	}

	// Dedupe on (start, end, entity_type), first occurrence wins.
	seen := make(map[entity.Key]bool, len(all))
	unique := all[:0]
	for _, s := range all {
		k := s.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, s)
	}

	a.log.Debugf("analyze", "%d spans (%d ner, %d pattern) in %d chars",
		len(unique), len(nerSpans), len(patternSpans), len(text))
	return unique, nil
}

// AnonymizeText runs Analyze and substitutes each span with its
// <ENTITY_TYPE> placeholder. Substitution runs back-to-front by start
// offset so earlier offsets stay valid while the text length changes.
//
// Overlapping spans of different types are resolved before substitution:
// spans are ordered by start ascending (longest first on ties) and any
// span overlapping an already-accepted one is dropped, so the
// earliest-starting, longest span wins and offsets never corrupt.
func (a *Analyzer) AnonymizeText(ctx context.Context, text string, requested []string, lang string) (string, error) {
	spans, err := a.Analyze(ctx, text, requested, lang)
	if err != nil {
		return "", err
	}

	accepted := resolveOverlaps(spans)

	// Back to front.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start > accepted[j].Start })
	out := text
	for _, s := range accepted {
		out = out[:s.Start] + "<" + s.EntityType + ">" + out[s.End:]
	}
	return out, nil
}

// resolveOverlaps keeps only mutually non-overlapping spans, preferring
// the earliest start and, on equal start, the longest span.
func resolveOverlaps(spans []entity.Span) []entity.Span {
	ordered := make([]entity.Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End > ordered[j].End
	})

	var accepted []entity.Span
	lastEnd := -1
	for _, s := range ordered {
		if s.Start < lastEnd {
			continue
		}
		accepted = append(accepted, s)
		lastEnd = s.End
	}
	return accepted
}

// TypeText is one unique (entity type, literal text) detection pair.
type TypeText struct {
	EntityType string `json:"entity_type"`
	Text       string `json:"text"`
}

// UniquePairs reduces spans to their unique (type, text) pairs in first-seen
// order, the shape the document upload response reports.
func UniquePairs(spans []entity.Span) []TypeText {
	type key struct{ t, x string }
	seen := make(map[key]bool, len(spans))
	var out []TypeText
	for _, s := range spans {
		k := key{s.EntityType, s.Text}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, TypeText{EntityType: s.EntityType, Text: s.Text})
	}
	return out
}

func filterTypes(spans []entity.Span, allowed []string) []entity.Span {
	set := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		set[t] = true
	}
	out := spans[:0]
	for _, s := range spans {
		if set[s.EntityType] {
			out = append(out, s)
		}
	}
	return out
}
