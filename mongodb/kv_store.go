package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type kvDocument struct {
	Key       string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// KeyValueStore implements cache.Backend on a MongoDB collection. Expired
// documents are removed by a TTL index and filtered out on every read, since
// the TTL monitor only runs about once a minute.
type KeyValueStore struct {
	coll *mongo.Collection
}

var (
	_ cache.Backend = (*KeyValueStore)(nil)
	_ cache.Pinger  = (*KeyValueStore)(nil)
)

// NewKeyValueStore creates the backend and ensures its TTL index.
func NewKeyValueStore(ctx context.Context, db *mongo.Database, collection string) (*KeyValueStore, error) {
	if collection == "" {
		collection = KeyValueCollection
	}

	store := &KeyValueStore{
		coll: db.Collection(collection),
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := store.coll.Indexes().CreateOne(timeoutCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TTL index on %s: %w", collection, err)
	}

	log.Info().Str("collection", collection).Msg("Indexes for keyed store collection ensured.")

	return store, nil
}

func liveFilter(extra bson.D, now time.Time) bson.D {
	return append(extra, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "expires_at", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}}},
	}})
}

// Get implements cache.Backend.Get.
func (s *KeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDocument
	err := s.coll.FindOne(ctx, liveFilter(bson.D{{Key: "_id", Value: key}}, time.Now().UTC())).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find key: %w", err)
	}

	return doc.Value, nil
}

// Set implements cache.Backend.Set.
func (s *KeyValueStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	doc := kvDocument{Key: key, Value: value}
	if ttl > 0 {
		expiresAt := time.Now().UTC().Add(ttl)
		doc.ExpiresAt = &expiresAt
	}

	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert key: %w", err)
	}

	return nil
}

// Delete implements cache.Backend.Delete.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}}); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Take implements cache.Backend.Take with findOneAndDelete.
func (s *KeyValueStore) Take(ctx context.Context, key string) ([]byte, error) {
	var doc kvDocument
	err := s.coll.FindOneAndDelete(ctx, liveFilter(bson.D{{Key: "_id", Value: key}}, time.Now().UTC())).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take key: %w", err)
	}

	return doc.Value, nil
}

// Keys implements cache.Backend.Keys with an anchored regex on _id, which
// MongoDB serves from the primary key index.
func (s *KeyValueStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	filter := liveFilter(bson.D{{Key: "_id", Value: bson.D{
		{Key: "$regex", Value: "^" + regexp.QuoteMeta(prefix)},
	}}}, time.Now().UTC())

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer cursor.Close(ctx)

	keys := make([]string, 0)
	for cursor.Next(ctx) {
		var doc kvDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode key: %w", err)
		}
		keys = append(keys, doc.Key)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error while listing keys: %w", err)
	}

	return keys, nil
}

// Ping checks the shared client.
func (s *KeyValueStore) Ping(ctx context.Context) error {
	return Ping(ctx)
}

// Close is a no-op; the shared client is closed with CloseMongoDB.
func (s *KeyValueStore) Close() error {
	return nil
}
