package pdf

import (
	"fmt"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"openanonymiser/internal/crypto"
)

// Document is an in-memory reconstructed PDF, not yet saved. Temp-file
// lifecycle belongs to the caller.
type Document struct {
	ctx *model.Context
}

// Save writes the document to path.
func (d *Document) Save(path string) error {
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return fmt.Errorf("pdf: save %s: %w", path, err)
	}
	return nil
}

// Deanonymize reconstructs the original text of an anonymized PDF.
//
// Occurrence records are extracted and decrypted with key; ErrNoMetadata
// is returned when the document carries none. Each record with a valid
// page index and 4-element rect has its mask replaced by the decrypted
// original at the recorded location. Records that fail to decrypt (wrong
// key) or carry malformed geometry are skipped with a warning; restored
// reports how many entities were actually put back.
func (e *Engine) Deanonymize(anonPath, key string) (doc *Document, restored int, err error) {
	hashedKey := crypto.DeriveKey(key)
	defer crypto.Zero(hashedKey)

	ctx, err := api.ReadContextFile(anonPath)
	if err != nil {
		return nil, 0, fmt.Errorf("pdf: open %s: %w", anonPath, err)
	}

	occs, err := e.extractFromContext(ctx, hashedKey)
	if err != nil {
		return nil, 0, err
	}
	if len(occs) == 0 {
		return nil, 0, ErrNoMetadata
	}

	for _, occ := range occs {
		if occ.Entity == nil {
			e.log.Warnf("restore", "occurrence %s: no decrypted entity, skipping", occ.ID)
			continue
		}
		if occ.Page < 1 || occ.Page > ctx.PageCount {
			e.log.Warnf("restore", "occurrence %s: page %d out of range, skipping", occ.ID, occ.Page)
			continue
		}
		if len(occ.Rect) != 4 {
			e.log.Warnf("restore", "occurrence %s: invalid rect format, skipping", occ.ID)
			continue
		}

		content, err := pageContent(ctx, occ.Page)
		if err != nil || content == nil {
			e.log.Warnf("restore", "occurrence %s: page %d unreadable, skipping", occ.ID, occ.Page)
			continue
		}

		matches := findMatches(content, occ.EntityMask)
		if len(matches) == 0 {
			e.log.Warnf("restore", "occurrence %s: mask not found on page %d", occ.ID, occ.Page)
			continue
		}
		m := closestMatch(matches, occ.Rect)

		newContent := replaceOne(content, m, len(occ.EntityMask), *occ.Entity)
		if err := setPageContent(ctx, occ.Page, newContent); err != nil {
			e.log.Errorf("restore", "occurrence %s: rewrite page %d: %v", occ.ID, occ.Page, err)
			continue
		}
		restored++
	}

	e.log.Infof("deanonymize", "restored %d of %d entities", restored, len(occs))
	return &Document{ctx: ctx}, restored, nil
}

// closestMatch picks the match whose box origin is nearest the recorded
// rect. Masks repeat on a page when several entities share a type, so the
// geometry disambiguates.
func closestMatch(matches []match, rect []float64) match {
	best := matches[0]
	bestDist := math.Inf(1)
	for _, m := range matches {
		dx := m.rect[0] - rect[0]
		dy := m.rect[1] - rect[1]
		d := dx*dx + dy*dy
		if d < bestDist {
			bestDist = d
			best = m
		}
	}
	return best
}

// replaceOne rewrites a single matched occurrence inside its string
// literal, leaving other occurrences in the same literal untouched.
func replaceOne(content []byte, m match, oldLen int, repl string) []byte {
	lit := m.show
	newText := lit.text[:m.byteIdx] + repl + lit.text[m.byteIdx+oldLen:]
	enc := encodeLiteral(newText)
	out := make([]byte, 0, len(content)-(lit.litEnd-lit.litStart)+len(enc))
	out = append(out, content[:lit.litStart]...)
	out = append(out, enc...)
	out = append(out, content[lit.litEnd:]...)
	return out
}
