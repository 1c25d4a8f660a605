package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shopsync-api/internal/model"
	"shopsync-api/pkg/uid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRawEventRepository implements RawEventRepository using MongoDB.
type MongoRawEventRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoRawEventRepository connects to MongoDB and ensures the listing indexes.
func NewMongoRawEventRepository(uri, database, collection string) (*MongoRawEventRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "received_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "topic", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("[MongoRawEventRepository] Warning: failed to create indexes: %v", err)
	}

	log.Printf("[MongoRawEventRepository] Connected to %s/%s", database, collection)
	return &MongoRawEventRepository{
		client:     client,
		collection: coll,
	}, nil
}

// Record appends a raw event.
func (r *MongoRawEventRepository) Record(ctx context.Context, event *model.RawEvent) error {
	if event.ID == "" {
		event.ID = uid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to record raw event: %w", err)
	}
	return nil
}

// GetRawEvent returns the event or nil when absent.
func (r *MongoRawEventRepository) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	var e model.RawEvent
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw event: %w", err)
	}
	return &e, nil
}

// ListRawEvents returns matching events oldest first.
func (r *MongoRawEventRepository) ListRawEvents(ctx context.Context, filter model.RawEventFilter, limit, offset int) ([]model.RawEvent, int64, error) {
	query := bson.M{}
	if filter.Topic != "" {
		query["topic"] = filter.Topic
	}
	received := bson.M{}
	if !filter.Since.IsZero() {
		received["$gte"] = filter.Since.UTC()
	}
	if !filter.Until.IsZero() {
		received["$lt"] = filter.Until.UTC()
	}
	if len(received) > 0 {
		query["received_at"] = received
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list raw events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []model.RawEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("failed to decode raw events: %w", err)
	}
	if events == nil {
		events = []model.RawEvent{}
	}

	count, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count raw events: %w", err)
	}
	return events, count, nil
}

// Close closes the MongoDB connection.
func (r *MongoRawEventRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ RawEventRepository = (*MongoRawEventRepository)(nil)
