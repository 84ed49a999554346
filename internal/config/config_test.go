package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Port != 8080 {
		t.Errorf("default port %d", cfg.Port)
	}
	if cfg.DefaultLanguage != "nl" || cfg.DefaultNLPEngine != "spacy" {
		t.Errorf("language/engine defaults: %s/%s", cfg.DefaultLanguage, cfg.DefaultNLPEngine)
	}
	if len(cfg.DefaultEntities) == 0 || cfg.DefaultEntities[0] != "PERSON" {
		t.Errorf("default entities: %v", cfg.DefaultEntities)
	}
	if cfg.DatabasePath == "" || cfg.DataDir == "" {
		t.Error("storage paths must have defaults")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_NLP_ENGINE", "Transformers")
	t.Setenv("CRYPTO_KEY", "testsleutel")
	t.Setenv("KEEP_TEMP_FILES", "TRUE")
	t.Setenv("MAX_CONNS", "-3")

	cfg := defaults()
	loadEnv(cfg)

	if cfg.Port != 9090 {
		t.Errorf("PORT override ignored: %d", cfg.Port)
	}
	if cfg.DefaultNLPEngine != "transformers" {
		t.Errorf("engine not lowercased: %q", cfg.DefaultNLPEngine)
	}
	if cfg.CryptoKey != "testsleutel" {
		t.Error("CRYPTO_KEY override ignored")
	}
	if !cfg.KeepTempFiles {
		t.Error("KEEP_TEMP_FILES override ignored")
	}
	if cfg.MaxConns != 64 {
		t.Errorf("non-positive MAX_CONNS accepted: %d", cfg.MaxConns)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"port": 7000, "defaultLanguage": "nl"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, path)

	if cfg.Port != 7000 {
		t.Errorf("file port ignored: %d", cfg.Port)
	}
	// Untouched keys keep their defaults.
	if cfg.TaggerEndpoint != "http://localhost:5001" {
		t.Errorf("unrelated key changed: %q", cfg.TaggerEndpoint)
	}
}

func TestLoadFileMissingOrInvalid(t *testing.T) {
	cfg := defaults()
	loadFile(cfg, filepath.Join(t.TempDir(), "bestaat-niet.json"))
	if cfg.Port != 8080 {
		t.Error("missing file changed the config")
	}

	path := filepath.Join(t.TempDir(), "kapot.json")
	if err := os.WriteFile(path, []byte("{niet json"), 0o600); err != nil {
		t.Fatal(err)
	}
	loadFile(cfg, path)
	if cfg.Port != 8080 {
		t.Error("invalid file changed the config")
	}
}

func TestCryptoKeyNeverSerialized(t *testing.T) {
	// The json:"-" tags keep secrets out of any marshaled form.
	cfg := defaults()
	cfg.CryptoKey = "geheim"
	cfg.BasicAuthPassword = "wachtwoord"

	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"port": 7000}`), 0o600); err != nil {
		t.Fatal(err)
	}
	loadFile(cfg, path)

	if cfg.CryptoKey != "geheim" || cfg.BasicAuthPassword != "wachtwoord" {
		t.Error("secrets must be untouchable through the config file")
	}
}
