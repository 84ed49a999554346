package main

import (
	"io"
	"os"
	"strings"
	"testing"

	"openanonymiser/internal/config"
)

// captureStdout redirects os.Stdout to a pipe for the duration of fn,
// then returns everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("pipe write close: %v", closeErr)
	}
	os.Stdout = old

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read pipe: %v", err)
	}
	return string(out)
}

func TestPrintBanner_ContainsExpectedFields(t *testing.T) {
	cfg := &config.Config{
		Port:             8080,
		DefaultLanguage:  "nl",
		DefaultNLPEngine: "spacy",
		TaggerEndpoint:   "http://localhost:5001",
		DataDir:          "data",
	}

	out := captureStdout(t, func() { printBanner(cfg) })

	for _, want := range []string{"8080", "nl", "spacy", "localhost:5001", "data"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in banner output, got:\n%s", want, out)
		}
	}
}
