package pdf

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"openanonymiser/internal/crypto"
	"openanonymiser/internal/entity"
)

// Anonymize redacts every geometric occurrence of each replacement target
// in the document at inputPath and writes the redacted document, with the
// occurrence list embedded in its metadata, to outputPath.
//
// key is the caller's passphrase; it is hashed to the AEAD key and never
// stored. masks optionally overrides the type→label table.
//
// Occurrences are discovered in deterministic order: replacements in
// caller order, pages in document order, matches in stream order. The
// returned count can be lower than len(replacements) when targets are not
// found; callers treat a shortfall as partial success, not failure.
//
// Output is written to a temporary path and renamed into place only on
// full success, so an abandoned call never leaves a partial artifact.
func (e *Engine) Anonymize(inputPath, outputPath string, replacements []Replacement, key string, masks map[string]string) ([]Occurrence, error) {
	hashedKey := crypto.DeriveKey(key)
	defer crypto.Zero(hashedKey)
	fingerprint := crypto.FingerprintString(key)

	ctx, err := api.ReadContextFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("pdf: open %s: %w", inputPath, err)
	}

	occurrences := []Occurrence{}
	idCounter := 0

	for _, repl := range replacements {
		mask := entity.MaskFor(repl.EntityType, masks)
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			content, err := pageContent(ctx, pageNr)
			if err != nil {
				e.log.Warnf("search", "page %d unreadable: %v", pageNr, err)
				continue
			}
			if content == nil {
				continue
			}

			matches := findMatches(content, repl.Text)
			if len(matches) == 0 {
				continue
			}
			box := pageBox(ctx, pageNr)

			var redacted []match
			for _, m := range matches {
				encrypted, err := crypto.Encrypt([]byte(repl.Text), hashedKey, crypto.DefaultHeader)
				if err != nil {
					// One failed match must not abort the page or document.
					e.log.Errorf("redact", "page %d: encrypt occurrence: %v", pageNr, err)
					continue
				}
				r := clampRect(m.rect, box)
				occurrences = append(occurrences, Occurrence{
					ID:              fmt.Sprintf("ann%d", idCounter),
					Page:            pageNr,
					Rect:            []float64{r[0], r[1], r[2], r[3]},
					EntityType:      repl.EntityType,
					EntityMask:      mask,
					EncryptedEntity: encrypted,
					KeyFingerprint:  fingerprint,
				})
				idCounter++
				redacted = append(redacted, m)
			}
			if len(redacted) == 0 {
				continue
			}

			newContent := redactMatches(content, redacted, repl.Text, mask)
			if err := setPageContent(ctx, pageNr, newContent); err != nil {
				e.log.Errorf("redact", "page %d: rewrite content: %v", pageNr, err)
				// Roll back the records for matches that were not applied.
				occurrences = occurrences[:len(occurrences)-len(redacted)]
				idCounter -= len(redacted)
				continue
			}
			e.log.Debugf("redact", "page %d: %d occurrence(s) of %s at size %d",
				pageNr, len(redacted), repl.EntityType, dominantFontSize(redacted))
		}
	}

	if err := embedOccurrences(ctx, occurrences); err != nil {
		return nil, fmt.Errorf("pdf: embed metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, fmt.Errorf("pdf: create output dir for %s: %w", outputPath, err)
	}
	tmp := outputPath + ".tmp"
	if err := api.WriteContextFile(ctx, tmp); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup of partial output
		return nil, fmt.Errorf("pdf: write %s: %w", outputPath, err)
	}
	if fi, err := os.Stat(tmp); err != nil || fi.Size() == 0 {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup of partial output
		return nil, fmt.Errorf("pdf: anonymization produced no valid output file")
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup of partial output
		return nil, fmt.Errorf("pdf: finalize %s: %w", outputPath, err)
	}

	e.log.Infof("anonymize", "%d occurrence(s) across %d page(s) -> %s",
		len(occurrences), ctx.PageCount, outputPath)
	return occurrences, nil
}

// pageBox returns the effective media box of a page, nil when it cannot
// be resolved.
func pageBox(ctx *model.Context, pageNr int) *types.Rectangle {
	_, _, attrs, err := ctx.PageDict(pageNr, false)
	if err != nil || attrs == nil {
		return nil
	}
	return attrs.MediaBox
}

// clampRect confines a rectangle to the page box. The glyph width
// approximation can overshoot the right edge on long lines.
func clampRect(r [4]float64, box *types.Rectangle) [4]float64 {
	if box == nil {
		return r
	}
	r[0] = math.Max(r[0], box.LL.X)
	r[1] = math.Max(r[1], box.LL.Y)
	r[2] = math.Min(r[2], box.UR.X)
	r[3] = math.Min(r[3], box.UR.Y)
	return r
}

// pageContent returns the decoded content stream of a page, nil when the
// page has none.
func pageContent(ctx *model.Context, pageNr int) ([]byte, error) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

// setPageContent replaces the page's content with a single new stream.
func setPageContent(ctx *model.Context, pageNr int, content []byte) error {
	d, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return err
	}
	sd, err := ctx.XRefTable.NewStreamDictForBuf(content)
	if err != nil {
		return err
	}
	if err := sd.Encode(); err != nil {
		return err
	}
	ir, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}
	d.Update("Contents", *ir)
	return nil
}
