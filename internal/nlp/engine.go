// Package nlp defines the NER engine contract and its remote
// implementation.
//
// Model inference runs out of process: a tagger sidecar loads the Dutch
// language model (a fast spaCy pipeline or a heavier transformers
// pipeline) and exposes one HTTP endpoint. This package only carries the
// contract (given text, return a list of typed spans) so the analyzer can
// be tested against a fake without any model present.
package nlp

import (
	"context"

	"openanonymiser/internal/entity"
)

// Engine produces entity spans from free text.
//
// filter, when non-empty, restricts the returned entity types; the engine
// applies it at inference time. lang is a BCP 47-ish lowercase language
// code ("nl").
//
// Implementations are safe for concurrent use; the loaded model is
// expensive to initialize and is constructed once per process.
type Engine interface {
	Detect(ctx context.Context, text string, filter []string, lang string) ([]entity.Span, error)
}
