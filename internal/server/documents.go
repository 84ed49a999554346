package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"openanonymiser/internal/analyzer"
	"openanonymiser/internal/entity"
	"openanonymiser/internal/pdf"
	"openanonymiser/internal/store"
)

// maxUploadBytes caps the multipart form held in memory per request.
const maxUploadBytes = 64 << 20

type uploadedFile struct {
	ID         string              `json:"id"`
	Filename   string              `json:"filename"`
	Entities   []analyzer.TypeText `json:"entities"`
	UploadedAt time.Time           `json:"uploaded_at"`
}

type uploadResponse struct {
	Message string         `json:"message"`
	Files   []uploadedFile `json:"files"`
}

// handleUpload accepts one or more PDF files, stores each under a fresh
// document ID, runs entity detection over the extracted text and reports
// the unique (type, text) pairs found per file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.writeError(w, http.StatusUnprocessableEntity, "no files provided")
		return
	}
	for _, fh := range files {
		if !validExtension(fh.Filename) {
			s.writeError(w, http.StatusUnprocessableEntity, extensionError())
			return
		}
	}

	tags := parseTags(r.FormValue("tags"))

	resp := uploadResponse{Message: fmt.Sprintf("%d file(s) uploaded successfully", len(files))}
	for _, fh := range files {
		id := uuid.NewString()
		sourcePath := filepath.Join(s.cfg.DataDir, "temp", "source", id+".pdf")
		if err := saveUpload(fh, sourcePath); err != nil {
			s.log.Errorf("upload", "save %s: %v", fh.Filename, err)
			s.writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
			return
		}

		rec := &store.DocumentRecord{
			ID:          id,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			SourcePath:  sourcePath,
			UploadedAt:  time.Now().UTC(),
			Tags:        tags,
		}

		spans, err := s.analyzeDocument(r, sourcePath)
		if err != nil {
			s.log.Warnf("upload", "analysis of %s failed: %v", fh.Filename, err)
			rec.Events = append(rec.Events, store.Event{Status: pdf.StatusFailed(err), At: time.Now().UTC()})
		} else {
			s.entities.Put(id, spans)
		}

		if err := s.docs.Put(rec); err != nil {
			s.log.Errorf("upload", "persist %s: %v", id, err)
			s.writeError(w, http.StatusInternalServerError, "failed to persist document metadata")
			return
		}

		s.metrics.DocumentsUploaded.Add(1)
		s.log.Infof("upload", "%s stored as %s (%d entities)", fh.Filename, id, len(spans))
		resp.Files = append(resp.Files, uploadedFile{
			ID:         id,
			Filename:   fh.Filename,
			Entities:   analyzer.UniquePairs(spans),
			UploadedAt: rec.UploadedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// analyzeDocument extracts the document text and runs full entity detection
// with the configured defaults.
func (s *Server) analyzeDocument(r *http.Request, sourcePath string) ([]entity.Span, error) {
	text, err := s.engine.ExtractText(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	spans, err := s.analyzer.Analyze(r.Context(), text, nil, "")
	if err != nil {
		return nil, err
	}
	return spans, nil
}

type anonymizeDocRequest struct {
	Entities []string `json:"entities,omitempty"`
}

type anonymizeDocResponse struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	Status   string         `json:"status"`
	Entities []stringEntity `json:"entities"`
}

// handleAnonymizeDocument redacts a previously uploaded document in place,
// embedding the reversible occurrence metadata in the output PDF.
func (s *Server) handleAnonymizeDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok, err := s.docs.Get(id)
	if err != nil {
		s.log.Errorf("anonymize_doc", "load %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, "failed to load document metadata")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "Document not found")
		return
	}

	var req anonymizeDocRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	requested := req.Entities
	if len(requested) == 0 {
		requested = s.cfg.AnonymizeTypes
	}

	spans, cached := s.entities.Get(id)
	if !cached {
		spans, err = s.analyzeDocument(r, rec.SourcePath)
		if err != nil {
			s.metrics.ErrorsAnalyze.Add(1)
			s.failDocument(id, err)
			s.writeError(w, http.StatusBadGateway, "analysis failed: "+err.Error())
			return
		}
		s.entities.Put(id, spans)
	}

	selected := filterSpans(spans, requested)
	if len(selected) == 0 {
		s.writeError(w, http.StatusUnprocessableEntity, "no entities of the requested types were found in the document")
		return
	}

	replacements := buildReplacements(selected)
	outputPath := filepath.Join(s.cfg.DataDir, "temp", "anonymized", id+".pdf")

	occs, err := s.engine.Anonymize(rec.SourcePath, outputPath, replacements, s.cfg.CryptoKey, nil)
	if err != nil {
		s.metrics.ErrorsPDF.Add(1)
		s.failDocument(id, err)
		s.writeError(w, http.StatusInternalServerError, "anonymization failed: "+err.Error())
		return
	}
	if len(occs) < len(replacements) {
		s.log.Warnf("anonymize_doc", "%s: %d of %d entity strings located in page content",
			id, len(occs), len(replacements))
	}

	status := pdf.StatusSuccess(len(occs))
	if err := s.docs.SetAnonymizedPath(id, outputPath); err != nil {
		s.log.Errorf("anonymize_doc", "record path for %s: %v", id, err)
	}
	if err := s.docs.AddEvent(id, store.Event{Status: status, At: time.Now().UTC()}); err != nil {
		s.log.Errorf("anonymize_doc", "record event for %s: %v", id, err)
	}

	s.metrics.DocumentsAnonymized.Add(1)
	s.metrics.OccurrencesRedacted.Add(int64(len(occs)))
	s.log.Infof("anonymize_doc", "%s anonymized: %s", id, status)
	s.writeJSON(w, http.StatusOK, anonymizeDocResponse{
		ID:       id,
		Filename: rec.Filename,
		Status:   status,
		Entities: toStringEntities(selected),
	})
}

// failDocument records a failed processing event, best effort.
func (s *Server) failDocument(id string, cause error) {
	if err := s.docs.AddEvent(id, store.Event{Status: pdf.StatusFailed(cause), At: time.Now().UTC()}); err != nil {
		s.log.Errorf("anonymize_doc", "record failure event for %s: %v", id, err)
	}
}

// handleDeanonymize restores the original text of an anonymized PDF and
// streams the result back as a download.
func (s *Server) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		s.writeError(w, http.StatusUnprocessableEntity, "no file provided")
		return
	}
	fh := fhs[0]
	if !validExtension(fh.Filename) {
		s.writeError(w, http.StatusUnprocessableEntity, extensionError())
		return
	}

	procID := uuid.NewString()
	workDir := filepath.Join(s.cfg.DataDir, "temp", "deanonymize")
	inputPath := filepath.Join(workDir, procID+".pdf")
	if err := saveUpload(fh, inputPath); err != nil {
		s.log.Errorf("deanonymize", "save %s: %v", fh.Filename, err)
		s.writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}
	if !s.cfg.KeepTempFiles {
		defer s.removeTemp(inputPath)
	}

	doc, restored, err := s.engine.Deanonymize(inputPath, s.cfg.CryptoKey)
	if err != nil {
		if errors.Is(err, pdf.ErrNoMetadata) {
			s.writeError(w, http.StatusUnprocessableEntity, "No anonymization metadata found in the document")
			return
		}
		s.metrics.ErrorsPDF.Add(1)
		s.log.Errorf("deanonymize", "%s: %v", fh.Filename, err)
		s.writeError(w, http.StatusInternalServerError, "deanonymization failed: "+err.Error())
		return
	}

	downloadName := "deanonymized_" + filepath.Base(fh.Filename)
	outputPath := filepath.Join(workDir, "deanonymized_"+procID+".pdf")
	if err := doc.Save(outputPath); err != nil {
		s.metrics.ErrorsPDF.Add(1)
		s.log.Errorf("deanonymize", "write restored document: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to write restored document")
		return
	}
	if !s.cfg.KeepTempFiles {
		defer s.removeTemp(outputPath)
	}

	s.metrics.DocumentsDeanonymized.Add(1)
	s.metrics.OccurrencesRestored.Add(int64(restored))
	if restored == 0 {
		// Metadata was present but nothing came back, which in practice
		// means the key did not decrypt any record.
		s.metrics.DecryptFailures.Add(1)
		s.log.Warnf("deanonymize", "%s: metadata present but no entities restored (wrong key?)", fh.Filename)
	}
	s.log.Infof("deanonymize", "%s: %d occurrences restored", fh.Filename, restored)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	f, err := os.Open(outputPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read restored document")
		return
	}
	defer f.Close() //nolint:errcheck
	if _, err := io.Copy(w, f); err != nil {
		s.log.Errorf("deanonymize", "stream response: %v", err)
	}
}

func (s *Server) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warnf("cleanup", "remove %s: %v", path, err)
	}
}

// buildReplacements reduces spans to one replacement per unique literal
// text, preserving first-seen order. Entity types are lowercased, the
// form the mask table and the embedded metadata use.
func buildReplacements(spans []entity.Span) []pdf.Replacement {
	seen := make(map[string]bool, len(spans))
	out := make([]pdf.Replacement, 0, len(spans))
	for _, sp := range spans {
		if sp.Text == "" || seen[sp.Text] {
			continue
		}
		seen[sp.Text] = true
		out = append(out, pdf.Replacement{
			Text:       sp.Text,
			EntityType: strings.ToLower(sp.EntityType),
		})
	}
	return out
}

// filterSpans keeps spans whose type appears in allowed, compared
// case-insensitively.
func filterSpans(spans []entity.Span, allowed []string) []entity.Span {
	set := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		set[strings.ToUpper(t)] = true
	}
	var out []entity.Span
	for _, sp := range spans {
		if set[strings.ToUpper(sp.EntityType)] {
			out = append(out, sp)
		}
	}
	return out
}

func parseTags(raw string) []store.Tag {
	if raw == "" {
		return nil
	}
	var tags []store.Tag
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tags = append(tags, store.Tag{ID: uuid.NewString(), Name: name})
	}
	return tags
}

// saveUpload writes an uploaded part to dst, creating parent directories.
func saveUpload(fh *multipart.FileHeader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return out.Close()
}
