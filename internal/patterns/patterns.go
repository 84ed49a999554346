// Package patterns implements the regex-based PII recognizers for Dutch
// text. Each recognizer is bound to exactly one entity type and carries a
// fixed list of expressions, each with its own confidence score. Scores in
// the 0.4-0.6 range reflect how prone an expression is to false positives
// (an 8-digit KvK number matches any 8-digit string, so it scores low).
//
// Recognizers are stateless and reentrant: a Set can be shared freely or
// rebuilt per call.
package patterns

import (
	"regexp"

	"openanonymiser/internal/entity"
	"openanonymiser/internal/logger"
)

// LanguageAny marks a recognizer as language-independent.
const LanguageAny = "any"

// expr is one regular expression with its confidence score.
type expr struct {
	name  string
	re    *regexp.Regexp
	score float64
}

// Recognizer finds occurrences of a single entity type.
type Recognizer struct {
	entityType string
	language   string // "nl" or LanguageAny
	exprs      []expr
	// validate, when set, filters raw matches (e.g. BSN elfproef).
	validate func(match string) bool
}

// EntityType returns the entity type tag this recognizer produces.
func (r *Recognizer) EntityType() string { return r.entityType }

// Language returns the language tag ("nl" or "any").
func (r *Recognizer) Language() string { return r.language }

// Find returns all spans of this recognizer's entity type in text.
func (r *Recognizer) Find(text string) []entity.Span {
	var spans []entity.Span
	for _, e := range r.exprs {
		for _, loc := range e.re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if r.validate != nil && !r.validate(match) {
				continue
			}
			spans = append(spans, entity.Span{
				EntityType: r.entityType,
				Start:      loc[0],
				End:        loc[1],
				Score:      entity.ScoreOf(e.score),
				Text:       match,
			})
		}
	}
	return spans
}

// spec declares one recognizer before compilation.
type spec struct {
	entityType string
	language   string
	exprs      []struct {
		name  string
		re    string
		score float64
	}
	validate func(string) bool
}

// licensePlateAlternatives are the six sidecode layouts of Dutch plates.
var licensePlateAlternatives = `[A-Z]{2}-\d{2}-\d{2}|\d{2}-\d{2}-[A-Z]{2}|\d{2}-[A-Z]{2}-\d{2}|[A-Z]{2}-\d{2}-[A-Z]{2}|[A-Z]{2}-[A-Z]{2}-\d{2}|\d{2}-[A-Z]{2}-[A-Z]{2}`

var dutchMonths = `januari|februari|maart|april|mei|juni|juli|augustus|september|oktober|november|december`

func allSpecs() []spec {
	type x = struct {
		name  string
		re    string
		score float64
	}
	return []spec{
		{
			entityType: entity.TypePhoneNumber, language: "nl",
			exprs: []x{{"DUTCH_PHONE", `\b(?:0|(?:\+|00)31)[- ]?(?:\d[- ]?){9}\b`, 0.6}},
		},
		{
			entityType: entity.TypeIBAN, language: "nl",
			exprs: []x{{"DUTCH_IBAN", `\bNL\d{2}[A-Z]{4}\d{10}\b`, 0.6}},
		},
		{
			entityType: entity.TypeEmail, language: "nl",
			exprs: []x{{"EMAIL_ADDRESS", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, 0.6}},
		},
		{
			entityType: entity.TypeNationalID, language: "nl",
			// 9 digits, optionally grouped 4-2-3. Candidates must pass the
			// elfproef before they count as a hit.
			exprs:    []x{{"NL_BSN", `\b\d{4}[- ]?\d{2}[- ]?\d{3}\b`, 0.6}},
			validate: ValidBSN,
		},
		{
			entityType: entity.TypeDateTime, language: "nl",
			exprs: []x{
				{"NL_DATE_NUMERIC", `\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`, 0.45},
				{"NL_DATE_WRITTEN", `\b\d{1,2} (?:` + dutchMonths + `) \d{4}\b`, 0.45},
			},
		},
		{
			entityType: entity.TypePassport, language: "nl",
			// Dutch travel document numbers: two letters, six alphanumerics,
			// one digit; the letter O is never issued.
			exprs: []x{{"NL_PASSPORT", `\b[A-NP-Z]{2}[A-NP-Z0-9]{6}\d\b`, 0.4}},
		},
		{
			entityType: entity.TypeCaseNumber, language: "nl",
			exprs: []x{
				{"NL_CASE_NO", `\b[A-Z]{1,3}-\d{2,4}-\d{4,6}\b`, 0.5},
				{"NL_AWB_NO", `\b(?:AWB )?\d{2}/\d{4,6}\b`, 0.5},
			},
		},
		{
			entityType: entity.TypePostcode, language: "nl",
			exprs: []x{{"NL_POSTCODE", `\b\d{4}\s?[A-Z]{2}\b`, 0.55}},
		},
		{
			entityType: entity.TypeVATNumber, language: "nl",
			exprs: []x{{"NL_VAT", `\bNL\d{9}B\d{2}\b`, 0.6}},
		},
		{
			entityType: entity.TypeKvKNumber, language: "nl",
			// Any 8-digit run; score stays low without supporting context.
			exprs: []x{{"KVK_8_DIGIT", `\b\d{8}\b`, 0.45}},
		},
		{
			entityType: entity.TypeLicensePlate, language: "nl",
			exprs: []x{{"NL_PLATE", `\b(?:` + licensePlateAlternatives + `)\b`, 0.5}},
		},
		{
			entityType: entity.TypeIPAddress, language: LanguageAny,
			exprs: []x{{"IPV4", `\b(?:25[0-5]|2[0-4]\d|1\d{2}|[1-9]?\d)(?:\.(?:25[0-5]|2[0-4]\d|1\d{2}|[1-9]?\d)){3}\b`, 0.5}},
		},
	}
}

// Set is the fixed collection of recognizers applied to every analysis.
type Set struct {
	recognizers []*Recognizer
}

// NewSet compiles all recognizers. An expression that fails to compile is
// logged and skipped so one bad pattern degrades rather than disables
// detection.
func NewSet(log *logger.Logger) *Set {
	s := &Set{}
	for _, sp := range allSpecs() {
		r := &Recognizer{
			entityType: sp.entityType,
			language:   sp.language,
			validate:   sp.validate,
		}
		for _, e := range sp.exprs {
			re, err := regexp.Compile(e.re)
			if err != nil {
				if log != nil {
					log.Warnf("compile_pattern", "skipping %s (%s): %v", e.name, sp.entityType, err)
				}
				continue
			}
			r.exprs = append(r.exprs, expr{name: e.name, re: re, score: e.score})
		}
		if len(r.exprs) > 0 {
			s.recognizers = append(s.recognizers, r)
		}
	}
	return s
}

// Recognizers returns the compiled recognizers in their fixed order.
func (s *Set) Recognizers() []*Recognizer { return s.recognizers }

// FindAll runs every recognizer over the full text and concatenates the
// results in recognizer order.
func (s *Set) FindAll(text string) []entity.Span {
	var spans []entity.Span
	for _, r := range s.recognizers {
		spans = append(spans, r.Find(text)...)
	}
	return spans
}

// ValidBSN reports whether a matched national-ID candidate passes the
// elfproef: with digits d1..d9, 9*d1 + 8*d2 + ... + 2*d8 - d9 must be a
// multiple of 11. Separator characters in the match are ignored.
func ValidBSN(match string) bool {
	var digits []int
	for _, c := range match {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) != 9 {
		return false
	}
	sum := 0
	for i, d := range digits[:8] {
		sum += (9 - i) * d
	}
	sum -= digits[8]
	return sum%11 == 0
}
