package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// Snapshot is the most recent analysis of one product, published for the
// dashboard to read.
type Snapshot struct {
	RunID          string          `json:"run_id"`
	Product        string          `json:"product"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Price          int             `json:"price"`
	Discount       string          `json:"discount"`
	Rating         string          `json:"rating"`
	Defaulted      []string        `json:"defaulted,omitempty"`
	Forecast       []ForecastPoint `json:"forecast,omitempty"`
	ForecastError  string          `json:"forecast_error,omitempty"`
	Sentiment      map[string]int  `json:"sentiment,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
	Dispatched     bool            `json:"dispatched"`
}

// ForecastPoint is the JSON form of one forecast value.
type ForecastPoint struct {
	Date     string  `json:"date"`
	Discount float64 `json:"discount"`
}

// ForecastPoints converts a forecast into its JSON form.
func ForecastPoints(fc *types.Forecast) []ForecastPoint {
	if fc == nil {
		return nil
	}
	out := make([]ForecastPoint, len(fc.Points))
	for i, p := range fc.Points {
		out[i] = ForecastPoint{Date: p.Date.Format(dateLayout), Discount: p.Value}
	}
	return out
}

// snapshotClient is the part of *redis.Client LatestStore uses.
type snapshotClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// LatestStore keeps one Snapshot per product in Redis with a TTL.
type LatestStore struct {
	client snapshotClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewLatestStore creates a snapshot publisher over client.
func NewLatestStore(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *LatestStore {
	return newLatestStore(client, prefix, ttl, logger)
}

func newLatestStore(client snapshotClient, prefix string, ttl time.Duration, logger *slog.Logger) *LatestStore {
	return &LatestStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "latest_store"),
	}
}

// Key returns the Redis key holding product's snapshot.
func (s *LatestStore) Key(product string) string {
	return s.prefix + product
}

// Publish replaces product's snapshot.
func (s *LatestStore) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.Key(snap.Product), data, s.ttl).Err(); err != nil {
		return &types.StorageError{Backend: "redis", Op: "publish snapshot", Err: err}
	}
	s.logger.Debug("snapshot published", "product", snap.Product, "run_id", snap.RunID)
	return nil
}

// Get returns product's snapshot, or nil if none is stored.
func (s *LatestStore) Get(ctx context.Context, product string) (*Snapshot, error) {
	val, err := s.client.Get(ctx, s.Key(product)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &types.StorageError{Backend: "redis", Op: "get snapshot", Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the Redis connection.
func (s *LatestStore) Close() error {
	return s.client.Close()
}
