// Package pdf implements the PDF anonymization pipeline: geometric text
// search and redaction across all pages, per-occurrence authenticated
// encryption of the original value, the JSON-in-XMP metadata codec that
// makes redactions recoverable, and the reverse de-anonymization path.
//
// Documents are read and written through pdfcpu; text geometry comes from
// a small content-stream interpreter (content.go). Redaction rewrites the
// matched string bytes in place with the mask label, which removes the
// original glyphs while inheriting the run's font and position.
package pdf

import (
	"errors"
	"fmt"
	"strings"

	"openanonymiser/internal/logger"
)

// ErrNoMetadata is returned by Deanonymize when the document carries no
// anonymization metadata. Callers map it to a client-facing 422.
var ErrNoMetadata = errors.New("pdf: no anonymization metadata found in document")

// Replacement binds one literal target string to its entity type.
// Order matters: occurrence ids are assigned in replacement order.
type Replacement struct {
	Text       string
	EntityType string // lowercase, e.g. "person", "iban"
}

// Occurrence is one physical redaction applied to the document.
// Rect is (x0, y0, x1, y1) in page space; for rotated or skewed text the
// axis-aligned box is an approximation, which the format accepts.
type Occurrence struct {
	ID              string    `json:"id"`
	Page            int       `json:"page"` // 1-based
	Rect            []float64 `json:"rect"`
	EntityType      string    `json:"entity_type"`
	EntityMask      string    `json:"entity_mask"`
	EncryptedEntity string    `json:"encrypted_entity"`
	KeyFingerprint  string    `json:"key_fingerprint"`

	// Entity is the decrypted original, populated only by Extract when a
	// key is supplied and the envelope verifies. Never embedded.
	Entity *string `json:"entity,omitempty"`
}

// Engine runs anonymization and de-anonymization over PDF files.
// Stateless apart from its logger; safe to share.
type Engine struct {
	log *logger.Logger
}

// NewEngine returns an Engine logging through log.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New("PDF", "info")
	}
	return &Engine{log: log}
}

// match is one located occurrence of a target inside a content stream.
type match struct {
	show    textShow
	byteIdx int // byte index of the target within show.text
	rect    [4]float64
}

// findMatches locates every occurrence of target in the page content, in
// stream order. A target split across separate string tokens (kerned TJ
// fragments, font changes) is not visible as contiguous text and is not
// matched; that is an accepted limitation of text-layer search.
func findMatches(content []byte, target string) []match {
	if target == "" {
		return nil
	}
	var out []match
	for _, sh := range interpret(content) {
		idx := 0
		for {
			rel := strings.Index(sh.text[idx:], target)
			if rel < 0 {
				break
			}
			at := idx + rel
			x0 := sh.x + advance(sh.text[:at], sh.fontSize)
			w := advance(target, sh.fontSize)
			out = append(out, match{
				show:    sh,
				byteIdx: at,
				rect: [4]float64{
					x0,
					sh.y - 0.2*sh.fontSize,
					x0 + w,
					sh.y + 0.8*sh.fontSize,
				},
			})
			idx = at + len(target)
		}
	}
	return out
}

// redactMatches rewrites content so every matched target is replaced by
// mask, returning the new stream. Literals are rewritten back-to-front so
// earlier byte offsets stay valid.
func redactMatches(content []byte, matches []match, target, mask string) []byte {
	// Group matches by literal token; each literal is re-encoded once.
	type lit struct {
		start, end int
		text       string
	}
	seen := map[int]lit{}
	var order []int
	for _, m := range matches {
		if _, ok := seen[m.show.litStart]; !ok {
			seen[m.show.litStart] = lit{start: m.show.litStart, end: m.show.litEnd, text: m.show.text}
			order = append(order, m.show.litStart)
		}
	}
	// Back to front.
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if order[j] > order[i] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	out := content
	for _, start := range order {
		l := seen[start]
		replaced := strings.ReplaceAll(l.text, target, mask)
		enc := encodeLiteral(replaced)
		rebuilt := make([]byte, 0, len(out)-(l.end-l.start)+len(enc))
		rebuilt = append(rebuilt, out[:l.start]...)
		rebuilt = append(rebuilt, enc...)
		rebuilt = append(rebuilt, out[l.end:]...)
		out = rebuilt
	}
	return out
}

// dominantFontSize returns the font size of the first match, defaulting
// when style introspection produced nothing usable.
func dominantFontSize(matches []match) int {
	for _, m := range matches {
		if m.show.fontSize > 0 {
			return int(m.show.fontSize)
		}
	}
	return defaultFontSize
}

// StatusSuccess formats the caller-facing success status string.
func StatusSuccess(n int) string {
	return fmt.Sprintf("success (%d entities processed)", n)
}

// StatusFailed formats the caller-facing failure status string.
func StatusFailed(err error) string {
	return fmt.Sprintf("failed: %v", err)
}
