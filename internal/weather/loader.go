package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunIDLayout formats run identifiers from the UTC start time of a load.
const RunIDLayout = "run_20060102T150405Z"

// LoadResult summarises one Load call.
type LoadResult struct {
	RunID    string
	Upserted int
	Modified int
	Matched  int
	Failures []LoadError
}

// Loader persists records idempotently through a Store.
type Loader struct {
	store Store
	now   func() time.Time
	log   *slog.Logger
}

// NewLoader creates a Loader writing to store.
func NewLoader(store Store, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log,
	}
}

// WithClock overrides the time source used for run ids and ingestion stamps.
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// Collection returns the name of the target collection.
func (l *Loader) Collection() string {
	return l.store.Name()
}

// Load upserts records keyed on their natural key. Every record is stamped
// with the same run id. Empty input returns a zero result without touching
// the store.
func (l *Loader) Load(ctx context.Context, records []ObservationRecord) (LoadResult, error) {
	if len(records) == 0 {
		return LoadResult{}, nil
	}

	if err := l.store.EnsureIndex(ctx); err != nil {
		return LoadResult{}, fmt.Errorf("%w: ensure index on %s: %v", ErrLoad, l.store.Name(), err)
	}

	started := l.now().UTC()
	runID := started.Format(RunIDLayout)

	stamped := make([]ObservationRecord, len(records))
	for i, rec := range records {
		rec.IngestedAt = l.now().UTC()
		rec.RunID = runID
		stamped[i] = rec
	}

	res, err := l.store.BulkUpsert(ctx, stamped)
	if err != nil {
		return LoadResult{RunID: runID}, fmt.Errorf("%w: bulk upsert into %s: %v", ErrLoad, l.store.Name(), err)
	}

	for _, f := range res.Failures {
		l.log.Error("record not written", "run_id", runID, "key", f.Key.String(), "error", f.Err)
	}
	l.log.Info("load complete",
		"run_id", runID,
		"collection", l.store.Name(),
		"upserted", res.Upserted,
		"modified", res.Modified,
		"matched", res.Matched,
		"failed", len(res.Failures),
	)

	return LoadResult{
		RunID:    runID,
		Upserted: res.Upserted,
		Modified: res.Modified,
		Matched:  res.Matched,
		Failures: res.Failures,
	}, nil
}
