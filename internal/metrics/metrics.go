// Package metrics provides lightweight performance counters for the
// anonymisation service.
//
// Counters use sync/atomic so hot paths (analysis, redaction) incur no
// mutex contention. Latency statistics use a single mutex per dimension;
// they are updated at most once per request.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"openanonymiser/internal/entity"
)

// knownEntityTypes lists the entity type tags the detectors can produce.
// Per-type counter maps are pre-populated in New() so Snapshot() iterates
// a fixed set without racing on map writes.
var knownEntityTypes = []string{
	entity.TypePerson, entity.TypeLocation, entity.TypeOrganization,
	entity.TypeAddress, entity.TypePhoneNumber, entity.TypeIBAN,
	entity.TypeEmail, entity.TypeNationalID, entity.TypeDateTime,
	entity.TypePassport, entity.TypeCaseNumber, entity.TypePostcode,
	entity.TypeVATNumber, entity.TypeKvKNumber, entity.TypeLicensePlate,
	entity.TypeIPAddress,
}

// Metrics holds all runtime counters for a running service instance.
// The zero value is NOT valid for the per-type counters; use New().
type Metrics struct {
	AnalyzeCalls       atomic.Int64
	AnonymizeTextCalls atomic.Int64

	DocumentsUploaded     atomic.Int64
	DocumentsAnonymized   atomic.Int64
	DocumentsDeanonymized atomic.Int64

	OccurrencesRedacted atomic.Int64
	OccurrencesRestored atomic.Int64
	DecryptFailures     atomic.Int64

	ErrorsAnalyze atomic.Int64
	ErrorsPDF     atomic.Int64

	// Written only in New(); concurrent reads are safe without a lock.
	entitiesDetected map[string]*atomic.Int64

	analyzeMu   sync.Mutex
	analyzeStat latencyStats

	startTime time.Time
}

// latencyStats accumulates simple latency aggregates.
type latencyStats struct {
	count int64
	total time.Duration
	max   time.Duration
}

// New returns Metrics with per-type counters pre-populated.
func New() *Metrics {
	m := &Metrics{
		entitiesDetected: make(map[string]*atomic.Int64, len(knownEntityTypes)),
		startTime:        time.Now(),
	}
	for _, t := range knownEntityTypes {
		m.entitiesDetected[t] = &atomic.Int64{}
	}
	return m
}

// CountEntity records one detected entity of the given type. Unknown
// types are counted against no bucket rather than racing on the map.
func (m *Metrics) CountEntity(entityType string) {
	if c, ok := m.entitiesDetected[entityType]; ok {
		c.Add(1)
	}
}

// ObserveAnalyze records one analysis latency sample.
func (m *Metrics) ObserveAnalyze(d time.Duration) {
	m.analyzeMu.Lock()
	m.analyzeStat.count++
	m.analyzeStat.total += d
	if d > m.analyzeStat.max {
		m.analyzeStat.max = d
	}
	m.analyzeMu.Unlock()
}

// Snapshot is a point-in-time JSON-friendly view of all counters.
type Snapshot struct {
	UptimeSeconds int64 `json:"uptime_seconds"`

	AnalyzeCalls       int64 `json:"analyze_calls"`
	AnonymizeTextCalls int64 `json:"anonymize_text_calls"`

	DocumentsUploaded     int64 `json:"documents_uploaded"`
	DocumentsAnonymized   int64 `json:"documents_anonymized"`
	DocumentsDeanonymized int64 `json:"documents_deanonymized"`

	OccurrencesRedacted int64 `json:"occurrences_redacted"`
	OccurrencesRestored int64 `json:"occurrences_restored"`
	DecryptFailures     int64 `json:"decrypt_failures"`

	ErrorsAnalyze int64 `json:"errors_analyze"`
	ErrorsPDF     int64 `json:"errors_pdf"`

	EntitiesDetected map[string]int64 `json:"entities_detected"`

	AnalyzeAvgMs float64 `json:"analyze_avg_ms"`
	AnalyzeMaxMs float64 `json:"analyze_max_ms"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		UptimeSeconds:         int64(time.Since(m.startTime).Seconds()),
		AnalyzeCalls:          m.AnalyzeCalls.Load(),
		AnonymizeTextCalls:    m.AnonymizeTextCalls.Load(),
		DocumentsUploaded:     m.DocumentsUploaded.Load(),
		DocumentsAnonymized:   m.DocumentsAnonymized.Load(),
		DocumentsDeanonymized: m.DocumentsDeanonymized.Load(),
		OccurrencesRedacted:   m.OccurrencesRedacted.Load(),
		OccurrencesRestored:   m.OccurrencesRestored.Load(),
		DecryptFailures:       m.DecryptFailures.Load(),
		ErrorsAnalyze:         m.ErrorsAnalyze.Load(),
		ErrorsPDF:             m.ErrorsPDF.Load(),
		EntitiesDetected:      make(map[string]int64, len(m.entitiesDetected)),
	}
	for t, c := range m.entitiesDetected {
		if v := c.Load(); v > 0 {
			s.EntitiesDetected[t] = v
		}
	}
	m.analyzeMu.Lock()
	if m.analyzeStat.count > 0 {
		s.AnalyzeAvgMs = float64(m.analyzeStat.total.Microseconds()) / float64(m.analyzeStat.count) / 1000
		s.AnalyzeMaxMs = float64(m.analyzeStat.max.Microseconds()) / 1000
	}
	m.analyzeMu.Unlock()
	return s
}
