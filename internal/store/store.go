// Package store persists document metadata across restarts.
//
// Store is the interface for the document record store. Records map an
// opaque document ID to filenames, on-disk paths, tags and anonymization
// events. Two implementations are provided:
//   - memoryStore: in-memory only, used in tests and when no path is configured.
//   - bboltStore: embedded key-value store (bbolt), used in production.
//
// Detected entity spans are deliberately NOT part of the persisted record:
// they are re-derivable from the source document and belong in the
// EntityCache (cache.go), an explicit in-memory cache keyed by document ID.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Tag is a caller-supplied label on a document.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is one anonymization attempt and its outcome status string.
type Event struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// DocumentRecord is the persisted metadata for one uploaded document.
type DocumentRecord struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"content_type"`
	SourcePath     string    `json:"source_path"`
	AnonymizedPath string    `json:"anonymized_path,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at"`
	Tags           []Tag     `json:"tags,omitempty"`
	Events         []Event   `json:"events,omitempty"`
}

// Store is the document record store. All implementations must be safe
// for concurrent use.
type Store interface {
	// Put stores or overwrites a record.
	Put(doc *DocumentRecord) error

	// Get returns the record for id, if present.
	Get(id string) (*DocumentRecord, bool, error)

	// SetAnonymizedPath records the output path after a successful
	// anonymization.
	SetAnonymizedPath(id, path string) error

	// AddEvent appends an anonymization event to the record.
	AddEvent(id string, ev Event) error

	// Close releases any resources held by the store.
	Close() error
}

// --- memoryStore ---------------------------------------------------------

type memoryStore struct {
	mu   sync.RWMutex
	docs map[string]*DocumentRecord
}

// NewMemory returns an in-memory Store, used in tests and as a fallback
// when no database path is configured.
func NewMemory() Store {
	return &memoryStore{docs: make(map[string]*DocumentRecord)}
}

func (s *memoryStore) Put(doc *DocumentRecord) error {
	cp := *doc
	s.mu.Lock()
	s.docs[doc.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(id string) (*DocumentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *doc
	return &cp, true, nil
}

func (s *memoryStore) SetAnonymizedPath(id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("store: document %q not found", id)
	}
	doc.AnonymizedPath = path
	return nil
}

func (s *memoryStore) AddEvent(id string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("store: document %q not found", id)
	}
	doc.Events = append(doc.Events, ev)
	return nil
}

func (s *memoryStore) Close() error { return nil }

// --- bboltStore ----------------------------------------------------------

const documentsBucket = "documents"

// bboltStore is a Store backed by an embedded bbolt database. Records
// survive process restarts. The database file is created at the given
// path if it does not exist.
type bboltStore struct {
	db *bolt.DB
}

// NewBbolt opens (or creates) the bbolt database at path and ensures the
// documents bucket exists.
func NewBbolt(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentsBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &bboltStore{db: db}, nil
}

func (s *bboltStore) Put(doc *DocumentRecord) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal document %q: %w", doc.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(documentsBucket)).Put([]byte(doc.ID), data)
	})
}

func (s *bboltStore) Get(id string) (*DocumentRecord, bool, error) {
	var doc *DocumentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(documentsBucket)).Get([]byte(id))
		if v == nil {
			return nil
		}
		doc = &DocumentRecord{}
		return json.Unmarshal(v, doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get document %q: %w", id, err)
	}
	return doc, doc != nil, nil
}

func (s *bboltStore) SetAnonymizedPath(id, path string) error {
	return s.update(id, func(doc *DocumentRecord) {
		doc.AnonymizedPath = path
	})
}

func (s *bboltStore) AddEvent(id string, ev Event) error {
	return s.update(id, func(doc *DocumentRecord) {
		doc.Events = append(doc.Events, ev)
	})
}

func (s *bboltStore) update(id string, mutate func(*DocumentRecord)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(documentsBucket))
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("store: document %q not found", id)
		}
		var doc DocumentRecord
		if err := json.Unmarshal(v, &doc); err != nil {
			return err
		}
		mutate(&doc)
		data, err := json.Marshal(&doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}
