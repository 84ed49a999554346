// Package entity defines the core data types shared by the detection and
// redaction layers: the detected span, the entity type tags, and the
// mask labels painted over redacted PDF text.
package entity

// Entity type tags produced by the recognizers and the NER engine.
const (
	TypePerson       = "PERSON"
	TypeLocation     = "LOCATION"
	TypeOrganization = "ORGANIZATION"
	TypeAddress      = "ADDRESS"
	TypePhoneNumber  = "PHONE_NUMBER"
	TypeIBAN         = "IBAN"
	TypeEmail        = "EMAIL"
	TypeNationalID   = "NATIONAL_ID"
	TypeDateTime     = "DATE_TIME"
	TypePassport     = "PASSPORT"
	TypeCaseNumber   = "CASE_NO"
	TypePostcode     = "POSTCODE"
	TypeVATNumber    = "VAT_NUMBER"
	TypeKvKNumber    = "KVK_NUMBER"
	TypeLicensePlate = "LICENSE_PLATE"
	TypeIPAddress    = "IP_ADDRESS"
)

// Span is one detected PII occurrence within a text.
// Start and End are half-open byte offsets into the source text,
// so Text == source[Start:End].
type Span struct {
	EntityType string   `json:"entity_type"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Score      *float64 `json:"score,omitempty"` // nil = engine produced no score
	Text       string   `json:"text"`
}

// Key identifies a span for deduplication. Two spans with the same
// offsets and type are the same detection regardless of score.
type Key struct {
	Start      int
	End        int
	EntityType string
}

// Key returns the deduplication key of the span.
func (s Span) Key() Key {
	return Key{Start: s.Start, End: s.End, EntityType: s.EntityType}
}

// Score64 returns the span score, or 0 with ok=false when the engine
// did not produce one.
func (s Span) Score64() (float64, bool) {
	if s.Score == nil {
		return 0, false
	}
	return *s.Score, true
}

// ScoreOf is a convenience for building spans with a literal score.
func ScoreOf(v float64) *float64 { return &v }

// defaultMasks maps lowercase entity types to the literal label painted
// over the redaction in a PDF. Untabulated types fall back to [TYPE].
var defaultMasks = map[string]string{
	"person": "[PERSON]",
	"iban":   "[IBAN]",
	"email":  "[EMAIL]",
	"phone":  "[PHONE]",
}

// MaskFor returns the mask label for a lowercase entity type,
// merged with any caller overrides.
func MaskFor(entityType string, overrides map[string]string) string {
	if m, ok := overrides[entityType]; ok {
		return m
	}
	if m, ok := defaultMasks[entityType]; ok {
		return m
	}
	return "[" + upper(entityType) + "]"
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
