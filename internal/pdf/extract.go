package pdf

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/text/unicode/norm"
)

// ExtractText returns the text layer of the whole document, pages joined
// by newlines, NFC-normalized so composed and decomposed accented forms
// (common in Dutch names) compare equal downstream in the analyzer.
func (e *Engine) ExtractText(path string) (string, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("pdf: open %s: %w", path, err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		content, err := pageContent(ctx, pageNr)
		if err != nil || content == nil {
			continue
		}
		var parts []string
		for _, sh := range interpret(content) {
			if sh.text != "" {
				parts = append(parts, sh.text)
			}
		}
		pages = append(pages, strings.Join(parts, " "))
	}
	return norm.NFC.String(strings.Join(pages, "\n")), nil
}

// PageCount returns the number of pages in the document at path.
func (e *Engine) PageCount(path string) (int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf: open %s: %w", path, err)
	}
	return ctx.PageCount, nil
}
