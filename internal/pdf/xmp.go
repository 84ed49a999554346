package pdf

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"openanonymiser/internal/crypto"
)

// xmpTemplate is the embedded metadata packet. The payload JSON rides in a
// CDATA section under a custom namespace; the packet id is the standard
// XMP magic. This layout is the current wire format; Extract additionally
// understands the historical variants.
const xmpTemplate = `<?xpacket begin='' id='W5M0MpCehiHzreSzNTczkc9d'?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:custom="http://example.com/custom/">
  <rdf:Description rdf:about="">
    <custom:AnnotationData><![CDATA[%s]]></custom:AnnotationData>
  </rdf:Description>
</rdf:RDF>
<?xpacket end='w'?>`

// occurrenceList is the embedded JSON payload shape.
type occurrenceList struct {
	Occurrences []Occurrence `json:"occurrences"`
}

// embedOccurrences serializes the occurrence list and replaces the
// document's metadata stream entirely; stale metadata never coexists with
// fresh metadata.
func embedOccurrences(ctx *model.Context, occs []Occurrence) error {
	// Coerce every field to a stable primitive form before serializing.
	safe := make([]Occurrence, len(occs))
	for i, o := range occs {
		rect := o.Rect
		if len(rect) != 4 {
			rect = []float64{0, 0, 0, 0}
		}
		safe[i] = Occurrence{
			ID:              o.ID,
			Page:            o.Page,
			Rect:            rect,
			EntityType:      o.EntityType,
			EntityMask:      o.EntityMask,
			EncryptedEntity: o.EncryptedEntity,
			KeyFingerprint:  o.KeyFingerprint,
		}
	}

	blob, err := asciiJSON(occurrenceList{Occurrences: safe})
	if err != nil {
		return fmt.Errorf("serialize occurrences: %w", err)
	}
	xmp := fmt.Sprintf(xmpTemplate, blob)

	sd, err := ctx.NewStreamDictForBuf([]byte(xmp))
	if err != nil {
		return err
	}
	sd.InsertName("Type", "Metadata")
	sd.InsertName("Subtype", "XML")
	if err := sd.Encode(); err != nil {
		return err
	}
	ir, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}
	rootDict, err := ctx.Catalog()
	if err != nil {
		return err
	}
	rootDict.Update("Metadata", *ir)
	return nil
}

// Extract returns the occurrence records embedded in the PDF at path.
//
// Multiple historical encodings of the payload are attempted in order:
// CDATA-wrapped JSON, attribute-style JSON, legacy per-occurrence
// rdf:Description attributes, and finally a raw JSON pattern search. When
// no method yields records the result is an empty list, not an error;
// the caller decides whether "no annotations" is a failure.
//
// If key is non-nil each record's entity is decrypted independently; a
// failed record gets a nil Entity and the others are unaffected.
func (e *Engine) Extract(path string, key []byte) ([]Occurrence, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: open %s: %w", path, err)
	}
	return e.extractFromContext(ctx, key)
}

func (e *Engine) extractFromContext(ctx *model.Context, key []byte) ([]Occurrence, error) {
	xmp, err := metadataBlob(ctx)
	if err != nil {
		e.log.Warnf("extract_metadata", "read metadata: %v", err)
		return []Occurrence{}, nil
	}
	if xmp == "" {
		return []Occurrence{}, nil
	}
	xmp = strings.TrimPrefix(xmp, "\uFEFF")

	occs := parseCDATA(xmp)
	if occs == nil {
		occs = parseAttribute(xmp)
	}
	if occs == nil {
		occs = parseLegacyDescriptions(xmp)
	}
	if occs == nil {
		occs = parseRawJSON(xmp)
	}
	if occs == nil {
		e.log.Debug("extract_metadata", "no occurrences found with any method")
		return []Occurrence{}, nil
	}

	if key != nil {
		e.decryptAll(occs, key)
	}
	return occs, nil
}

// decryptAll decrypts each record in place. One bad record never blocks
// the rest; with a wrong key all records end up with nil entities, which
// the caller reports as a decryption failure rather than a crash.
func (e *Engine) decryptAll(occs []Occurrence, key []byte) {
	for i := range occs {
		if occs[i].EncryptedEntity == "" {
			continue
		}
		plain, err := crypto.Decrypt(occs[i].EncryptedEntity, key, crypto.DefaultHeader)
		if err != nil {
			e.log.Errorf("decrypt_entity", "occurrence %s: %v", occs[i].ID, err)
			occs[i].Entity = nil
			continue
		}
		s := string(plain)
		occs[i].Entity = &s
	}
}

// metadataBlob returns the raw document metadata stream, "" when absent.
func metadataBlob(ctx *model.Context) (string, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return "", err
	}
	o, found := rootDict.Find("Metadata")
	if !found {
		return "", nil
	}
	sd, _, err := ctx.DereferenceStreamDict(o)
	if err != nil || sd == nil {
		return "", err
	}
	if err := sd.Decode(); err != nil {
		return "", err
	}
	return string(sd.Content), nil
}

// --- extraction strategies, tried in order ------------------------------

var cdataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<custom:AnnotationData><!\[CDATA\[(.*?)\]\]></custom:AnnotationData>`),
	regexp.MustCompile(`(?s)<custom:AnnotationData>\s*<!\[CDATA\[(.*?)\]\]>\s*</custom:AnnotationData>`),
	regexp.MustCompile(`(?s)<custom:AnnotationData>(.*?)</custom:AnnotationData>`),
}

// parseCDATA handles the current format: JSON in a CDATA section, with or
// without surrounding whitespace, plus the non-CDATA variant.
func parseCDATA(xmp string) []Occurrence {
	for _, re := range cdataPatterns {
		m := re.FindStringSubmatch(xmp)
		if m == nil {
			continue
		}
		if occs := parseOccurrenceJSON(strings.TrimSpace(m[1])); occs != nil {
			return occs
		}
	}
	return nil
}

// parseAttribute handles the attribute-style variant:
// custom:AnnotationData="{...}" with XML-escaped JSON.
func parseAttribute(xmp string) []Occurrence {
	const marker = `custom:AnnotationData="`
	start := strings.Index(xmp, marker)
	if start < 0 {
		return nil
	}
	start += len(marker)
	end := strings.Index(xmp[start:], `"`)
	if end < 0 {
		return nil
	}
	return parseOccurrenceJSON(xmlUnescape(xmp[start : start+end]))
}

var (
	legacyDescRe = regexp.MustCompile(`(?s)<rdf:Description([^>]*)/>`)
	legacyPropRe = regexp.MustCompile(`custom:([A-Za-z_]+)="([^"]*)"`)
)

// parseLegacyDescriptions handles the oldest format: one self-closing
// rdf:Description element per occurrence, fields as custom:* attributes.
func parseLegacyDescriptions(xmp string) []Occurrence {
	var occs []Occurrence
	for _, m := range legacyDescRe.FindAllStringSubmatch(xmp, -1) {
		props := map[string]string{}
		for _, p := range legacyPropRe.FindAllStringSubmatch(m[1], -1) {
			props[strings.ToLower(p[1])] = xmlUnescape(p[2])
		}
		if len(props) == 0 {
			continue
		}
		occ := Occurrence{
			ID:              props["id"],
			EntityType:      props["entity_type"],
			EntityMask:      props["entity_mask"],
			EncryptedEntity: props["encrypted_entity"],
			KeyFingerprint:  props["key_fingerprint"],
		}
		if v, err := strconv.Atoi(props["page"]); err == nil {
			occ.Page = v
		}
		occ.Rect = parseRectString(props["rect"])
		occs = append(occs, occ)
	}
	return occs
}

var rawJSONRe = regexp.MustCompile(`(?s)\{"occurrences":\s*\[(.*?)\]\}`)

// parseRawJSON is the last resort: find the payload JSON anywhere in the
// metadata blob, however it got there.
func parseRawJSON(xmp string) []Occurrence {
	m := rawJSONRe.FindStringSubmatch(xmp)
	if m == nil {
		return nil
	}
	return parseOccurrenceJSON(`{"occurrences": [` + m[1] + `]}`)
}

func parseOccurrenceJSON(blob string) []Occurrence {
	var list occurrenceList
	if err := json.Unmarshal([]byte(blob), &list); err != nil {
		return nil
	}
	if len(list.Occurrences) == 0 {
		return nil
	}
	return list.Occurrences
}

// parseRectString reads "x0,y0,x1,y1" or "[x0, y0, x1, y1]" into floats.
func parseRectString(s string) []float64 {
	s = strings.Trim(s, "[]() ")
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	var rect []float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil
		}
		rect = append(rect, f)
	}
	return rect
}

var xmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&#39;", "'",
	"&amp;", "&",
)

func xmlUnescape(s string) string {
	return xmlUnescaper.Replace(s)
}

// asciiJSON marshals v to compact JSON with every non-ASCII rune escaped
// as \uXXXX, so the metadata stream survives byte-level round trips
// through tools that are not UTF-8 clean.
func asciiJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range string(raw) {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}
