package nlp

import (
	"fmt"

	"openanonymiser/internal/config"
)

// Load selects the configured engine variant. The engine is intended to
// be constructed once and reused for the process lifetime.
func Load(cfg *config.Config) (Engine, error) {
	switch cfg.DefaultNLPEngine {
	case "spacy":
		return NewSpacyEngine(cfg.TaggerEndpoint, cfg.SpacyModel), nil
	case "transformers":
		return NewTransformersEngine(cfg.TaggerEndpoint, cfg.TransformersModel), nil
	default:
		return nil, fmt.Errorf("nlp: unknown engine %q", cfg.DefaultNLPEngine)
	}
}
