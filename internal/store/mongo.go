package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// IndexName names the unique natural-key index in every backend.
const IndexName = "uniq_source_lat_lon_ts"

// Document field names.
const (
	fieldSource     = "source"
	fieldLat        = "lat"
	fieldLon        = "lon"
	fieldTimestamp  = "timestamp"
	fieldIngestedAt = "ingested_at"
	fieldRunID      = "ingestion_run_id"
)

// MongoStore persists observations in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

// MongoConfig holds connection settings.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// NewMongoStore connects to MongoDB. Connecting is lazy in the driver; call
// Ping to verify the server is reachable.
func NewMongoStore(ctx context.Context, cfg MongoConfig, log *slog.Logger) (*MongoStore, error) {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout).
		SetAppName("weather-ingest")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		log:        log,
	}, nil
}

func (s *MongoStore) Name() string {
	return s.collection.Name()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

// EnsureIndex creates the unique compound index. MongoDB treats creating an
// identical index as a no-op.
func (s *MongoStore) EnsureIndex(ctx context.Context) error {
	name, err := s.collection.Indexes().CreateOne(ctx, IndexModel())
	if err != nil {
		return fmt.Errorf("create index %s: %w", IndexName, err)
	}
	s.log.Debug("mongo index ensured", "collection", s.collection.Name(), "index", name)
	return nil
}

// BulkUpsert issues one unordered bulk write of upserts. Write errors on
// individual records are returned in BulkResult.Failures.
func (s *MongoStore) BulkUpsert(ctx context.Context, records []weather.ObservationRecord) (weather.BulkResult, error) {
	if len(records) == 0 {
		return weather.BulkResult{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(KeyFilter(rec.Key())).
			SetUpdate(UpdatePipeline(rec)).
			SetUpsert(true))
	}

	res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))

	var out weather.BulkResult
	if res != nil {
		out = bulkCounts(res)
	}
	if err != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
			return out, err
		}
		out.Failures = writeFailures(bwe, records)
	}
	return out, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// IndexModel describes the unique natural-key index.
func IndexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{
			{Key: fieldSource, Value: 1},
			{Key: fieldLat, Value: 1},
			{Key: fieldLon, Value: 1},
			{Key: fieldTimestamp, Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(IndexName),
	}
}

// KeyFilter matches the document with the given natural key.
func KeyFilter(k weather.RecordKey) bson.D {
	return bson.D{
		{Key: fieldSource, Value: k.Source},
		{Key: fieldLat, Value: k.Latitude},
		{Key: fieldLon, Value: k.Longitude},
		{Key: fieldTimestamp, Value: k.Timestamp},
	}
}

// UpdatePipeline sets every measurement and refreshes the ingestion metadata
// only when a value differs from the stored document (or the document is
// new). Expressions inside a single $set stage see the document as it was
// before the stage, so the comparison uses the old values.
func UpdatePipeline(rec weather.ObservationRecord) mongo.Pipeline {
	unchanged := bson.A{
		bson.D{{Key: "$ne", Value: bson.A{bson.D{{Key: "$type", Value: "$" + fieldIngestedAt}}, "missing"}}},
	}
	set := bson.D{}
	for _, m := range rec.Values {
		var v interface{}
		if m.Value != nil {
			v = *m.Value
		}
		unchanged = append(unchanged, bson.D{{Key: "$eq", Value: bson.A{"$" + m.Name, v}}})
		set = append(set, bson.E{Key: m.Name, Value: bson.D{{Key: "$literal", Value: v}}})
	}

	keep := bson.D{{Key: "$and", Value: unchanged}}
	set = append(set,
		bson.E{Key: fieldIngestedAt, Value: bson.D{{Key: "$cond", Value: bson.A{
			keep, "$" + fieldIngestedAt, bson.D{{Key: "$literal", Value: rec.IngestedAt.UTC()}},
		}}}},
		bson.E{Key: fieldRunID, Value: bson.D{{Key: "$cond", Value: bson.A{
			keep, "$" + fieldRunID, bson.D{{Key: "$literal", Value: rec.RunID}},
		}}}},
	)

	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

// bulkCounts maps driver counts onto inserted / changed / untouched.
func bulkCounts(res *mongo.BulkWriteResult) weather.BulkResult {
	matched := int(res.MatchedCount - res.ModifiedCount)
	if matched < 0 {
		matched = 0
	}
	return weather.BulkResult{
		Upserted: int(res.UpsertedCount),
		Modified: int(res.ModifiedCount),
		Matched:  matched,
	}
}

func writeFailures(bwe mongo.BulkWriteException, records []weather.ObservationRecord) []weather.LoadError {
	failures := make([]weather.LoadError, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		lf := weather.LoadError{
			Index: we.Index,
			Err:   fmt.Errorf("mongo write error %d: %s", we.Code, we.Message),
		}
		if we.Index >= 0 && we.Index < len(records) {
			lf.Key = records[we.Index].Key()
		}
		failures = append(failures, lf)
	}
	return failures
}
