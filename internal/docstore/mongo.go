package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each collection to a MongoDB collection and each document
// id to its _id.
type MongoStore struct {
	db *mongo.Database
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(5)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// CreateIndexes adds the secondary indexes the storefront queries rely on.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	if _, err := m.db.Collection("orders").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create orders index: %w", err)
	}
	if _, err := m.db.Collection("medicine").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create medicine index: %w", err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return fromBSONDocument(raw), nil
}

func (m *MongoStore) Set(ctx context.Context, collection, id string, data Document, opts SetOptions) error {
	coll := m.db.Collection(collection)
	filter := bson.M{"_id": id}

	if opts.Merge {
		update := bson.M{"$set": bson.M(data)}
		if len(data) == 0 {
			update = bson.M{"$setOnInsert": bson.M{"_id": id}}
		}
		if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
		}
		return nil
	}

	if _, err := coll.ReplaceOne(ctx, filter, bson.M(data), options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *MongoStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	id := uuid.NewString()
	doc := bson.M{"_id": id}
	for k, v := range data {
		doc[k] = v
	}
	if _, err := m.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return id, nil
}

func (m *MongoStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	filter := bson.M{}
	for _, f := range filters {
		filter[f.Field] = f.Value
	}

	cursor, err := m.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}

	result := make([]Snapshot, 0, len(raws))
	for _, raw := range raws {
		id := fmt.Sprint(raw["_id"])
		result = append(result, Snapshot{ID: id, Data: fromBSONDocument(raw)})
	}
	return result, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

func fromBSONDocument(raw bson.M) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = fromBSON(v)
	}
	return doc
}

func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = fromBSON(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = fromBSON(x)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = fromBSON(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = fromBSON(x)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	}
	return v
}
