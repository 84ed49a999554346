// Command openanonymiser is the PII detection and PDF anonymization service.
//
// It exposes an HTTP API for detecting Dutch PII entities in text, redacting
// them from uploaded PDF documents and, with the right key, restoring the
// redacted text from the encrypted metadata embedded in the output PDF.
//
// Detection combines regex pattern recognizers with a remote NER tagger
// (spaCy or transformers, selected by configuration).
//
// Usage:
//
//	# Defaults (port 8080, spaCy tagger on localhost:5001)
//	./openanonymiser
//
//	# Custom port and a real crypto key
//	PORT=9000 CRYPTO_KEY=$(openssl rand -hex 32) ./openanonymiser
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/netutil"

	"openanonymiser/internal/analyzer"
	"openanonymiser/internal/config"
	"openanonymiser/internal/logger"
	"openanonymiser/internal/metrics"
	"openanonymiser/internal/nlp"
	"openanonymiser/internal/patterns"
	"openanonymiser/internal/pdf"
	"openanonymiser/internal/server"
	"openanonymiser/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New("MAIN", cfg.LogLevel)

	printBanner(cfg)

	if cfg.InsecureKey {
		log.Warn("startup", "CRYPTO_KEY is not set, using the insecure default; anyone can decrypt embedded metadata")
	}

	engine, err := nlp.Load(cfg)
	if err != nil {
		log.Fatalf("startup", "nlp engine: %v", err)
	}

	an := analyzer.New(engine, patterns.NewSet(logger.New("PATTERNS", cfg.LogLevel)),
		cfg.DefaultEntities, cfg.DefaultLanguage, logger.New("ANALYZER", cfg.LogLevel))
	pdfEngine := pdf.NewEngine(logger.New("PDF", cfg.LogLevel))

	docs, err := store.NewBbolt(cfg.DatabasePath)
	if err != nil {
		log.Warnf("startup", "document database unavailable (%v), using in-memory store", err)
		docs = store.NewMemory()
	}
	defer docs.Close() //nolint:errcheck

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		log.Fatalf("startup", "create data dir: %v", err)
	}

	srv := server.New(cfg, logger.New("SERVER", cfg.LogLevel), an, pdfEngine, docs, metrics.New())

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("startup", "listen on %s: %v", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConns)
	log.Infof("startup", "listening on %s (max %d connections)", addr, cfg.MaxConns)

	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := httpSrv.Serve(ln); err != nil {
		log.Fatalf("serve", "%v", err)
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          OpenAnonymiser  (Go)                        ║
╚══════════════════════════════════════════════════════╝
  Port            : %d
  Language        : %s
  NLP engine      : %s
  Tagger endpoint : %s
  Data dir        : %s

  Check status:
    curl http://localhost:%d/status
`, cfg.Port, cfg.DefaultLanguage, cfg.DefaultNLPEngine,
		cfg.TaggerEndpoint, cfg.DataDir, cfg.Port)
}
