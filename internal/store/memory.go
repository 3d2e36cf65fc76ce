package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var (
	// ErrNotFound is returned when no document exists for a key.
	ErrNotFound = errors.New("no observation for key")
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Documents are keyed by their natural key, so the uniqueness constraint
// always holds.
type MemoryStore struct {
	mu sync.RWMutex

	name string
	data map[weather.RecordKey]weather.ObservationRecord

	indexed bool

	// reject lets tests fail individual records.
	reject func(weather.ObservationRecord) error
}

// NewMemoryStore creates an empty store reporting name as its collection.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name: name,
		data: make(map[weather.RecordKey]weather.ObservationRecord),
	}
}

// RejectWith makes BulkUpsert fail every record for which fn returns an error.
func (s *MemoryStore) RejectWith(fn func(weather.ObservationRecord) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = fn
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) EnsureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = true
	return nil
}

// Indexed reports whether EnsureIndex has been called.
func (s *MemoryStore) Indexed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexed
}

// BulkUpsert inserts new keys and replaces changed ones. Records whose
// values are identical to the stored document are left untouched, including
// their ingestion metadata.
func (s *MemoryStore) BulkUpsert(ctx context.Context, records []weather.ObservationRecord) (weather.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return weather.BulkResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res weather.BulkResult
	for i, rec := range records {
		key := rec.Key()
		if s.reject != nil {
			if err := s.reject(rec); err != nil {
				res.Failures = append(res.Failures, weather.LoadError{Index: i, Key: key, Err: err})
				continue
			}
		}

		existing, ok := s.data[key]
		switch {
		case !ok:
			s.data[key] = clone(rec)
			res.Upserted++
		case existing.SameValues(rec):
			res.Matched++
		default:
			s.data[key] = clone(rec)
			res.Modified++
		}
	}
	return res, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

// Get returns the stored document for a key.
func (s *MemoryStore) Get(key weather.RecordKey) (weather.ObservationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[key]
	if !ok {
		return weather.ObservationRecord{}, ErrNotFound
	}
	return clone(rec), nil
}

// Count returns the number of stored documents.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// All returns every document ordered by timestamp, then coordinates.
func (s *MemoryStore) All() []weather.ObservationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.ObservationRecord, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Latitude != b.Latitude {
			return a.Latitude < b.Latitude
		}
		return a.Longitude < b.Longitude
	})
	return out
}

func clone(rec weather.ObservationRecord) weather.ObservationRecord {
	values := make([]weather.Measurement, len(rec.Values))
	for i, m := range rec.Values {
		values[i] = weather.Measurement{Name: m.Name}
		if m.Value != nil {
			v := *m.Value
			values[i].Value = &v
		}
	}
	rec.Values = values
	return rec
}
