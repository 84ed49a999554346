package metrics

import (
	"sync"
	"testing"
	"time"

	"openanonymiser/internal/entity"
)

func TestCountersAppearInSnapshot(t *testing.T) {
	m := New()
	m.AnalyzeCalls.Add(2)
	m.DocumentsUploaded.Add(1)
	m.OccurrencesRedacted.Add(5)
	m.CountEntity(entity.TypePerson)
	m.CountEntity(entity.TypePerson)
	m.CountEntity(entity.TypeIBAN)

	s := m.Snapshot()
	if s.AnalyzeCalls != 2 || s.DocumentsUploaded != 1 || s.OccurrencesRedacted != 5 {
		t.Errorf("counters wrong: %+v", s)
	}
	if s.EntitiesDetected[entity.TypePerson] != 2 {
		t.Errorf("person count %d, want 2", s.EntitiesDetected[entity.TypePerson])
	}
	if s.EntitiesDetected[entity.TypeIBAN] != 1 {
		t.Errorf("iban count %d, want 1", s.EntitiesDetected[entity.TypeIBAN])
	}
	// Zero-count types stay out of the snapshot.
	if _, ok := s.EntitiesDetected[entity.TypePassport]; ok {
		t.Error("zero-count type leaked into snapshot")
	}
}

func TestCountEntityUnknownType(t *testing.T) {
	m := New()
	m.CountEntity("VERZONNEN_TYPE") // must not panic or grow the map
	if len(m.Snapshot().EntitiesDetected) != 0 {
		t.Error("unknown type created a bucket")
	}
}

func TestAnalyzeLatencyAggregates(t *testing.T) {
	m := New()
	m.ObserveAnalyze(10 * time.Millisecond)
	m.ObserveAnalyze(30 * time.Millisecond)

	s := m.Snapshot()
	if s.AnalyzeAvgMs != 20 {
		t.Errorf("avg %v ms, want 20", s.AnalyzeAvgMs)
	}
	if s.AnalyzeMaxMs != 30 {
		t.Errorf("max %v ms, want 30", s.AnalyzeMaxMs)
	}
}

func TestConcurrentCounting(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AnalyzeCalls.Add(1)
			m.CountEntity(entity.TypeEmail)
			m.ObserveAnalyze(time.Millisecond)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.AnalyzeCalls != 50 || s.EntitiesDetected[entity.TypeEmail] != 50 {
		t.Errorf("lost updates: %+v", s)
	}
}
