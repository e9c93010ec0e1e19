package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// inserter is the part of *mongo.Collection MongoMirror uses.
type inserter interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoMirror copies observations and reviews into two MongoDB collections.
type MongoMirror struct {
	client       *mongo.Client
	observations inserter
	reviews      inserter
	count        atomic.Int64
	logger       *slog.Logger
}

// NewMongoMirror connects to uri and mirrors into database.
func NewMongoMirror(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoMirror, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	m := newMongoMirror(db.Collection("observations"), db.Collection("reviews"), logger)
	m.client = client
	return m, nil
}

func newMongoMirror(observations, reviews inserter, logger *slog.Logger) *MongoMirror {
	return &MongoMirror{
		observations: observations,
		reviews:      reviews,
		logger:       logger.With("component", "mongo_mirror"),
	}
}

func (m *MongoMirror) Name() string { return "mongodb" }

func (m *MongoMirror) MirrorObservation(ctx context.Context, obs types.Observation) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := m.observations.InsertOne(ctx, observationDoc(obs)); err != nil {
		return &types.StorageError{Backend: m.Name(), Op: "insert observation", Err: err}
	}
	m.count.Add(1)
	return nil
}

func (m *MongoMirror) MirrorReview(ctx context.Context, rev types.ReviewRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	doc := bson.M{
		"product":   rev.Product,
		"review":    rev.Text,
		"timestamp": rev.Timestamp.UTC(),
	}
	if _, err := m.reviews.InsertOne(ctx, doc); err != nil {
		return &types.StorageError{Backend: m.Name(), Op: "insert review", Err: err}
	}
	m.count.Add(1)
	return nil
}

func (m *MongoMirror) Close() error {
	m.logger.Info("mongodb mirror closing", "documents", m.count.Load())
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func observationDoc(obs types.Observation) bson.M {
	return bson.M{
		"product":   obs.Product,
		"timestamp": obs.Timestamp.UTC(),
		"date":      obs.Timestamp.Format(dateLayout),
		"price":     obs.Price,
		"discount":  obs.Discount,
		"rating":    obs.Rating,
		"extracted": obs.Extracted.List(),
		"defaulted": obs.Defaulted().List(),
	}
}
