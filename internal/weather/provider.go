package weather

import (
	"context"
	"time"
)

// Extractor fetches the raw columnar payload for a point and date range
// (e.g. Open-Meteo). Implementations classify failures as *ExtractionError.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, loc Location, rng DateRange, vars VariableSet) (RawPayload, error)
}

// BulkResult is what a store reports for one unordered batch of upserts.
type BulkResult struct {
	Upserted int // inserted because the key was new
	Modified int // key existed and values changed
	Matched  int // key existed and values were identical

	Failures []LoadError
}

// Store is the contract every durable store must satisfy.
type Store interface {
	// Name is the collection or table records are written to.
	Name() string
	Ping(ctx context.Context) error
	// EnsureIndex creates the unique natural-key constraint. Calling it when
	// the constraint already exists is a no-op.
	EnsureIndex(ctx context.Context) error
	// BulkUpsert writes records as an unordered batch keyed on RecordKey.
	// Per-record failures go into BulkResult.Failures; the returned error is
	// reserved for failures that prevented the batch as a whole.
	BulkUpsert(ctx context.Context, records []ObservationRecord) (BulkResult, error)
	Close(ctx context.Context) error
}

// RunEvent announces a completed load to downstream consumers.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Location   Location  `json:"location"`
	Start      string    `json:"start_date"`
	End        string    `json:"end_date"`
	Variables  []string  `json:"variables"`
	Processed  int       `json:"processed"`
	Upserted   int       `json:"upserted"`
	Modified   int       `json:"modified"`
	Failed     int       `json:"failed"`
	Collection string    `json:"collection"`
	FinishedAt time.Time `json:"finished_at"`
}

// EventPublisher delivers run events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev RunEvent) error
}
