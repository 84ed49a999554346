package entity

import "testing"

func TestMaskFor(t *testing.T) {
	cases := []struct {
		typ  string
		want string
	}{
		{"person", "[PERSON]"},
		{"iban", "[IBAN]"},
		{"email", "[EMAIL]"},
		{"phone", "[PHONE]"},
		{"location", "[LOCATION]"}, // untabulated, uppercased fallback
	}
	for _, c := range cases {
		if got := MaskFor(c.typ, nil); got != c.want {
			t.Errorf("MaskFor(%q) = %q, want %q", c.typ, got, c.want)
		}
	}
}

func TestMaskForOverrides(t *testing.T) {
	overrides := map[string]string{"person": "<NAAM>"}
	if got := MaskFor("person", overrides); got != "<NAAM>" {
		t.Errorf("override ignored: %q", got)
	}
	if got := MaskFor("iban", overrides); got != "[IBAN]" {
		t.Errorf("unrelated type affected: %q", got)
	}
}

func TestSpanKey(t *testing.T) {
	a := Span{EntityType: TypePerson, Start: 3, End: 8, Score: ScoreOf(0.9)}
	b := Span{EntityType: TypePerson, Start: 3, End: 8, Score: ScoreOf(0.1)}
	if a.Key() != b.Key() {
		t.Error("score must not participate in the deduplication key")
	}

	c := Span{EntityType: TypeEmail, Start: 3, End: 8}
	if a.Key() == c.Key() {
		t.Error("entity type must participate in the deduplication key")
	}
}

func TestScore64(t *testing.T) {
	s := Span{}
	if _, ok := s.Score64(); ok {
		t.Error("absent score reported as present")
	}
	s.Score = ScoreOf(0.5)
	if v, ok := s.Score64(); !ok || v != 0.5 {
		t.Errorf("Score64 = (%v, %v)", v, ok)
	}
}
