package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func fp(v float64) *float64 { return &v }

func obs(ts string, temp *float64, runID string) weather.ObservationRecord {
	return weather.ObservationRecord{
		Source:    weather.SourceOpenMeteo,
		Latitude:  13.0827,
		Longitude: 80.2707,
		Timestamp: ts,
		Values: []weather.Measurement{
			{Name: "temperature_2m", Value: temp},
			{Name: "relative_humidity_2m"},
		},
		IngestedAt: time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC),
		RunID:      runID,
	}
}

// storeContract runs the counting semantics every Store must share.
func storeContract(t *testing.T, s weather.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.EnsureIndex(ctx))
	require.NoError(t, s.EnsureIndex(ctx), "EnsureIndex is idempotent")

	batch := []weather.ObservationRecord{
		obs("2025-08-01T00:00", fp(30.1), "run_1"),
		obs("2025-08-01T01:00", fp(30.5), "run_1"),
	}
	res, err := s.BulkUpsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, weather.BulkResult{Upserted: 2}, res)

	batch[0].RunID, batch[1].RunID = "run_2", "run_2"
	res, err = s.BulkUpsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, weather.BulkResult{Matched: 2}, res)

	changed := obs("2025-08-01T01:00", fp(29.9), "run_3")
	res, err = s.BulkUpsert(ctx, []weather.ObservationRecord{changed, obs("2025-08-01T02:00", nil, "run_3")})
	require.NoError(t, err)
	assert.Equal(t, weather.BulkResult{Upserted: 1, Modified: 1}, res)

	res, err = s.BulkUpsert(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, weather.BulkResult{}, res)
}

func TestMemoryStoreContract(t *testing.T) {
	s := NewMemoryStore("open_meteo_raw")
	storeContract(t, s)

	assert.Equal(t, "open_meteo_raw", s.Name())
	assert.True(t, s.Indexed())
	assert.Equal(t, 3, s.Count())
}

func TestMemoryStoreKeepsMetadataOnIdenticalValues(t *testing.T) {
	s := NewMemoryStore("c")
	ctx := context.Background()

	_, err := s.BulkUpsert(ctx, []weather.ObservationRecord{obs("t0", fp(1), "run_1")})
	require.NoError(t, err)

	again := obs("t0", fp(1), "run_2")
	again.IngestedAt = again.IngestedAt.Add(time.Hour)
	_, err = s.BulkUpsert(ctx, []weather.ObservationRecord{again})
	require.NoError(t, err)

	got, err := s.Get(again.Key())
	require.NoError(t, err)
	assert.Equal(t, "run_1", got.RunID)

	_, err = s.BulkUpsert(ctx, []weather.ObservationRecord{obs("t0", fp(2), "run_3")})
	require.NoError(t, err)
	got, err = s.Get(again.Key())
	require.NoError(t, err)
	assert.Equal(t, "run_3", got.RunID)
}

func TestMemoryStoreDistinguishesKeys(t *testing.T) {
	s := NewMemoryStore("c")
	a := obs("t0", fp(1), "r")
	b := obs("t0", fp(1), "r")
	b.Latitude = 13.1
	c := obs("t0", fp(1), "r")
	c.Source = "other"

	res, err := s.BulkUpsert(context.Background(), []weather.ObservationRecord{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, 3, s.Count())
}

func TestMemoryStoreRejectWith(t *testing.T) {
	s := NewMemoryStore("c")
	s.RejectWith(func(rec weather.ObservationRecord) error {
		if rec.Timestamp == "t1" {
			return errors.New("rejected")
		}
		return nil
	})

	res, err := s.BulkUpsert(context.Background(), []weather.ObservationRecord{
		obs("t0", fp(1), "r"), obs("t1", fp(1), "r"), obs("t2", fp(1), "r"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Equal(t, "t1", res.Failures[0].Key.Timestamp)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore("c")
	rec := obs("t0", fp(1), "r")
	_, err := s.BulkUpsert(context.Background(), []weather.ObservationRecord{rec})
	require.NoError(t, err)

	*rec.Values[0].Value = 42
	got, err := s.Get(rec.Key())
	require.NoError(t, err)
	assert.Equal(t, 1.0, *got.Values[0].Value)

	_, err = s.Get(weather.RecordKey{Source: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAllIsOrdered(t *testing.T) {
	s := NewMemoryStore("c")
	_, err := s.BulkUpsert(context.Background(), []weather.ObservationRecord{
		obs("t2", fp(1), "r"), obs("t0", fp(1), "r"), obs("t1", fp(1), "r"),
	})
	require.NoError(t, err)

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "t0", all[0].Timestamp)
	assert.Equal(t, "t2", all[2].Timestamp)
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore("c")
	assert.Error(t, s.Ping(ctx))
	_, err := s.BulkUpsert(ctx, []weather.ObservationRecord{obs("t0", fp(1), "r")})
	assert.ErrorIs(t, err, context.Canceled)
}
