// Package config loads and holds all service configuration.
// Settings are read from a .env file (if present), then
// openanonymiser-config.json, then environment variables;
// later sources win.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// insecureDefaultKey is the fallback crypto key used when CRYPTO_KEY is
// unset. Matching the historical service default keeps old anonymized
// documents decryptable, but it must never be used in production.
const insecureDefaultKey = "secret"

// Config holds the full service configuration.
type Config struct {
	Port        int    `json:"port"`
	BindAddress string `json:"bindAddress"`
	MaxConns    int    `json:"maxConns"`
	LogLevel    string `json:"logLevel"`

	DefaultLanguage  string   `json:"defaultLanguage"`
	DefaultNLPEngine string   `json:"defaultNlpEngine"`
	DefaultEntities  []string `json:"defaultEntities"`
	AnonymizeTypes   []string `json:"supportedPiiEntitiesToAnonymize"`

	TaggerEndpoint    string `json:"taggerEndpoint"`
	SpacyModel        string `json:"spacyModel"`
	TransformersModel string `json:"transformersModel"`

	CryptoKey     string `json:"-"` // never serialized
	DataDir       string `json:"dataDir"`
	DatabasePath  string `json:"databasePath"`
	KeepTempFiles bool   `json:"keepTempFiles"`

	BasicAuthUsername string `json:"basicAuthUsername"`
	BasicAuthPassword string `json:"-"`

	// InsecureKey reports that the fallback crypto key is in use.
	InsecureKey bool `json:"-"`
}

// Load returns config with defaults overridden by openanonymiser-config.json
// and env vars. A .env file in the working directory is folded into the
// environment first.
func Load() *Config {
	_ = godotenv.Load() // .env is optional
	cfg := defaults()
	loadFile(cfg, "openanonymiser-config.json")
	loadEnv(cfg)
	if cfg.CryptoKey == "" {
		log.Printf("[CONFIG] Warning: CRYPTO_KEY is not set, using built-in default. This is not secure for production!")
		cfg.CryptoKey = insecureDefaultKey
		cfg.InsecureKey = true
	}
	return cfg
}

func defaults() *Config {
	return &Config{
		Port:             8080,
		BindAddress:      "127.0.0.1",
		MaxConns:         64,
		LogLevel:         "info",
		DefaultLanguage:  "nl",
		DefaultNLPEngine: "spacy",
		DefaultEntities: []string{
			"PERSON", "LOCATION", "PHONE_NUMBER", "EMAIL",
			"ORGANIZATION", "IBAN", "ADDRESS",
		},
		AnonymizeTypes: []string{
			"PERSON", "LOCATION", "PHONE_NUMBER", "EMAIL",
			"ORGANIZATION", "IBAN", "ADDRESS",
		},
		TaggerEndpoint:    "http://localhost:5001",
		SpacyModel:        "nl_core_news_md",
		TransformersModel: "pdelobelle/robbert-v2-dutch-base",
		DataDir:           "data",
		DatabasePath:      "data/openanonymiser.db",
		KeepTempFiles:     false,
		BasicAuthUsername: "admin",
		BasicAuthPassword: "password",
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEFAULT_LANGUAGE"); v != "" {
		cfg.DefaultLanguage = v
	}
	if v := os.Getenv("DEFAULT_NLP_ENGINE"); v != "" {
		cfg.DefaultNLPEngine = strings.ToLower(v)
	}
	if v := os.Getenv("TAGGER_ENDPOINT"); v != "" {
		cfg.TaggerEndpoint = v
	}
	if v := os.Getenv("DEFAULT_SPACY_MODEL"); v != "" {
		cfg.SpacyModel = v
	}
	if v := os.Getenv("DEFAULT_TRANSFORMERS_MODEL"); v != "" {
		cfg.TransformersModel = v
	}
	if v := os.Getenv("CRYPTO_KEY"); v != "" {
		cfg.CryptoKey = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("KEEP_TEMP_FILES"); v != "" {
		cfg.KeepTempFiles = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("BASIC_AUTH_USERNAME"); v != "" {
		cfg.BasicAuthUsername = v
	}
	if v := os.Getenv("BASIC_AUTH_PASSWORD"); v != "" {
		cfg.BasicAuthPassword = v
	}
}
