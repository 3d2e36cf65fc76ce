package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func TestIndexModel(t *testing.T) {
	m := IndexModel()

	assert.Equal(t, bson.D{
		{Key: "source", Value: 1},
		{Key: "lat", Value: 1},
		{Key: "lon", Value: 1},
		{Key: "timestamp", Value: 1},
	}, m.Keys)
	require.NotNil(t, m.Options)
	require.NotNil(t, m.Options.Unique)
	assert.True(t, *m.Options.Unique)
	require.NotNil(t, m.Options.Name)
	assert.Equal(t, IndexName, *m.Options.Name)
}

func TestKeyFilter(t *testing.T) {
	k := weather.RecordKey{Source: "open-meteo", Latitude: 13.0827, Longitude: 80.2707, Timestamp: "2025-08-01T00:00"}

	assert.Equal(t, bson.D{
		{Key: "source", Value: "open-meteo"},
		{Key: "lat", Value: 13.0827},
		{Key: "lon", Value: 80.2707},
		{Key: "timestamp", Value: "2025-08-01T00:00"},
	}, KeyFilter(k))
}

func TestUpdatePipeline(t *testing.T) {
	rec := obs("2025-08-01T00:00", fp(30.1), "run_20250802T000000Z")

	p := UpdatePipeline(rec)
	require.Len(t, p, 1)
	require.Len(t, p[0], 1)
	assert.Equal(t, "$set", p[0][0].Key)

	set, ok := p[0][0].Value.(bson.D)
	require.True(t, ok)

	fields := make(map[string]interface{}, len(set))
	for _, e := range set {
		fields[e.Key] = e.Value
	}
	assert.Equal(t, bson.D{{Key: "$literal", Value: 30.1}}, fields["temperature_2m"])
	assert.Equal(t, bson.D{{Key: "$literal", Value: nil}}, fields["relative_humidity_2m"])
	assert.Contains(t, fields, "ingested_at")
	assert.Contains(t, fields, "ingestion_run_id")
	assert.NotContains(t, fields, "source", "key fields come from the filter on insert")

	cond := fields["ingestion_run_id"].(bson.D)[0]
	assert.Equal(t, "$cond", cond.Key)
	args := cond.Value.(bson.A)
	require.Len(t, args, 3)
	assert.Equal(t, "$ingestion_run_id", args[1])
	assert.Equal(t, bson.D{{Key: "$literal", Value: "run_20250802T000000Z"}}, args[2])

	// the pipeline must serialise as a valid update document list
	for _, stage := range p {
		_, err := bson.Marshal(stage)
		require.NoError(t, err)
	}
}

func TestBulkCounts(t *testing.T) {
	got := bulkCounts(&mongo.BulkWriteResult{
		UpsertedCount: 2,
		MatchedCount:  5,
		ModifiedCount: 1,
	})
	assert.Equal(t, weather.BulkResult{Upserted: 2, Modified: 1, Matched: 4}, got)
}

func TestWriteFailures(t *testing.T) {
	records := []weather.ObservationRecord{
		obs("t0", fp(1), "r"),
		obs("t1", fp(2), "r"),
	}
	bwe := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "E11000 duplicate key"}},
			{WriteError: mongo.WriteError{Index: 7, Code: 2, Message: "out of range index"}},
		},
	}

	failures := writeFailures(bwe, records)
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Index)
	assert.Equal(t, "t1", failures[0].Key.Timestamp)
	assert.Contains(t, failures[0].Error(), "11000")
	assert.Equal(t, weather.RecordKey{}, failures[1].Key)
}

func TestUpdatePipelineStampsUTC(t *testing.T) {
	rec := obs("t0", fp(1), "r")
	rec.IngestedAt = time.Date(2025, 8, 2, 5, 30, 0, 0, time.FixedZone("IST", 19800))

	for _, e := range UpdatePipeline(rec)[0][0].Value.(bson.D) {
		if e.Key != "ingested_at" {
			continue
		}
		args := e.Value.(bson.D)[0].Value.(bson.A)
		stamped := args[2].(bson.D)[0].Value.(time.Time)
		assert.Equal(t, time.UTC, stamped.Location())
		assert.True(t, stamped.Equal(rec.IngestedAt))
	}
}
