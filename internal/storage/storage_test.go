package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/pricewatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func day(n int) time.Time {
	return time.Date(2024, 3, n, 9, 30, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *CSVStore {
	t.Helper()
	s, err := NewCSVStore(t.TempDir(), "competitor_data.csv", "reviews.csv", testLogger)
	if err != nil {
		t.Fatalf("NewCSVStore: %v", err)
	}
	return s
}

func TestCSVStoreObservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	full := types.Observation{
		Product: "Widget", Timestamp: day(1), Price: 1299, Discount: "-20%", Rating: "4.3",
		Extracted: types.Fields(types.AllFields),
	}
	failed := types.DefaultedObservation("Widget", day(2))
	other := types.Observation{Product: "Gadget", Timestamp: day(1), Price: 5, Discount: "N/A", Rating: "N/A"}

	for _, obs := range []types.Observation{full, failed, other} {
		if err := s.AppendObservation(ctx, obs); err != nil {
			t.Fatalf("AppendObservation: %v", err)
		}
	}

	got, err := s.ObservationsFor(ctx, "Widget")
	if err != nil {
		t.Fatalf("ObservationsFor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}
	if got[0].Price != 1299 || got[0].Discount != "-20%" || got[0].Rating != "4.3" {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
	if got[0].Extracted != full.Extracted {
		t.Errorf("Extracted = %s, want %s", got[0].Extracted, full.Extracted)
	}
	if !got[0].Timestamp.Equal(day(1)) {
		t.Errorf("Timestamp = %v", got[0].Timestamp)
	}
	if !got[1].FetchFailed() {
		t.Errorf("all-failed marker lost: %+v", got[1])
	}

	data, _ := os.ReadFile(s.ObservationPath())
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "product_name,Price,Discount,Date,Rating,Extracted,Timestamp" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Errorf("expected header + 3 rows, got %d lines", len(lines))
	}
}

func TestCSVStoreLegacyFile(t *testing.T) {
	dir := t.TempDir()
	legacy := "product_name,Price,Discount,Date\n" +
		"Widget,1299,-10%,2024-03-01\n" +
		"Widget,0,N/A,2024-03-02\n"
	if err := os.WriteFile(filepath.Join(dir, "competitor_data.csv"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewCSVStore(dir, "competitor_data.csv", "reviews.csv", testLogger)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.AppendObservation(ctx, types.Observation{
		Product: "Widget", Timestamp: day(3), Price: 1199, Discount: "-15%", Rating: "4.1",
		Extracted: types.Fields(types.AllFields),
	}); err != nil {
		t.Fatalf("AppendObservation: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "competitor_data.csv"))
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "product_name,Price,Discount,Date" {
		t.Errorf("legacy header rewritten: %q", lines[0])
	}
	if lines[3] != "Widget,1199,-15%,2024-03-03" {
		t.Errorf("appended row = %q", lines[3])
	}

	got, err := s.ObservationsFor(ctx, "Widget")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(got))
	}
	if !got[0].Extracted.Has(types.FieldPrice) || !got[0].Extracted.Has(types.FieldDiscount) {
		t.Errorf("legacy flags not inferred: %s", got[0].Extracted)
	}
	if got[0].Rating != types.DefaultRating {
		t.Errorf("missing rating column should default, got %q", got[0].Rating)
	}
	if got[1].Extracted != 0 {
		t.Errorf("defaulted legacy row should have no flags, got %s", got[1].Extracted)
	}

	series, err := s.SeriesFor(ctx, "Widget")
	if err != nil {
		t.Fatal(err)
	}
	if vals := series.Values(); len(vals) != 2 || vals[0] != 10 || vals[1] != 15 {
		t.Errorf("series = %v, want [10 15]", vals)
	}
}

func TestCSVStoreReviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	texts := []string{"Great, really great", "Broke after \"one\" week", "Great, really great"}
	for _, txt := range texts {
		if err := s.AppendReview(ctx, types.ReviewRecord{Product: "Widget", Text: txt, Timestamp: day(1)}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ReviewsFor(ctx, "Widget")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("duplicates must be kept, got %d reviews", len(got))
	}
	for i, r := range got {
		if r.Text != texts[i] {
			t.Errorf("review %d = %q, want %q", i, r.Text, texts[i])
		}
	}
}

func TestCSVStoreConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obs := types.Observation{Product: "Widget", Timestamp: day(1 + i%5), Price: i, Discount: "N/A", Rating: "N/A"}
			if err := s.AppendObservation(ctx, obs); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.ObservationsFor(ctx, "Widget")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 rows, got %d", len(got))
	}
}

func TestCoerceDiscount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"-20%", 20, true},
		{"20% off", 20, true},
		{"15", 15, true},
		{"Save 12.5%", 12.5, true},
		{"N/A", 0, false},
		{"", 0, false},
		{"no discount", 0, false},
	}
	for _, tt := range tests {
		got, ok := CoerceDiscount(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("CoerceDiscount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBuildSeriesCollapsesSameDay(t *testing.T) {
	obs := []types.Observation{
		{Product: "Widget", Timestamp: day(2), Discount: "-12%"},
		{Product: "Widget", Timestamp: day(1), Discount: "-10%"},
		{Product: "Widget", Timestamp: day(2).Add(3 * time.Hour), Discount: "-14%"},
		{Product: "Widget", Timestamp: day(3), Discount: "N/A"},
		{Product: "Gadget", Timestamp: day(3), Discount: "-50%"},
	}
	ts := BuildSeries("Widget", obs)
	if ts.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", ts.Len())
	}
	if ts.Points[0].Value != 10 || ts.Points[1].Value != 14 {
		t.Errorf("values = %v, want [10 14]", ts.Values())
	}
	if !ts.Points[0].Date.Before(ts.Points[1].Date) {
		t.Error("dates must be strictly increasing")
	}
}

type recordingMirror struct {
	mu   sync.Mutex
	obs  int
	revs int
	fail bool
}

func (m *recordingMirror) MirrorObservation(ctx context.Context, obs types.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs++
	if m.fail {
		return errors.New("mirror down")
	}
	return nil
}

func (m *recordingMirror) MirrorReview(ctx context.Context, rev types.ReviewRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revs++
	if m.fail {
		return errors.New("mirror down")
	}
	return nil
}

func (m *recordingMirror) Close() error { return nil }
func (m *recordingMirror) Name() string { return "recording" }

func TestMirroredStoreIgnoresMirrorFailures(t *testing.T) {
	primary := newTestStore(t)
	bad := &recordingMirror{fail: true}
	good := &recordingMirror{}
	s := NewMirroredStore(primary, []Mirror{bad, good}, testLogger)
	ctx := context.Background()

	if err := s.AppendObservation(ctx, types.DefaultedObservation("Widget", day(1))); err != nil {
		t.Fatalf("mirror failure leaked: %v", err)
	}
	if err := s.AppendReview(ctx, types.ReviewRecord{Product: "Widget", Text: "ok", Timestamp: day(1)}); err != nil {
		t.Fatalf("mirror failure leaked: %v", err)
	}
	if bad.obs != 1 || good.obs != 1 || good.revs != 1 {
		t.Errorf("mirrors not called: bad=%d good=%d/%d", bad.obs, good.obs, good.revs)
	}
	got, _ := s.ObservationsFor(ctx, "Widget")
	if len(got) != 1 {
		t.Errorf("reads should come from the primary, got %d", len(got))
	}
}

type recordingExec struct {
	sql  []string
	args [][]any
	err  error
}

func (e *recordingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = append(e.sql, sql)
	e.args = append(e.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func TestPostgresMirrorStatements(t *testing.T) {
	db := &recordingExec{}
	m := newPostgresMirror(db, testLogger)
	ctx := context.Background()

	obs := types.Observation{Product: "Widget", Timestamp: day(1), Price: 99, Discount: "-5%", Rating: "4.0", Extracted: types.Fields(types.FieldPrice)}
	if err := m.MirrorObservation(ctx, obs); err != nil {
		t.Fatal(err)
	}
	want := "INSERT INTO observations (product,observed_at,price,discount,rating,extracted) VALUES ($1,$2,$3,$4,$5,$6)"
	if db.sql[0] != want {
		t.Errorf("sql = %q\nwant  %q", db.sql[0], want)
	}
	if db.args[0][5] != "price" {
		t.Errorf("extracted arg = %v", db.args[0][5])
	}

	db.err = errors.New("connection reset")
	err := m.MirrorReview(ctx, types.ReviewRecord{Product: "Widget", Text: "fine", Timestamp: day(1)})
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "postgres" {
		t.Errorf("expected postgres StorageError, got %v", err)
	}
}

func TestForecastPoints(t *testing.T) {
	fc := &types.Forecast{Points: []types.Point{
		{Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), Value: 21.5},
	}}
	pts := ForecastPoints(fc)
	if len(pts) != 1 || pts[0].Date != "2024-03-06" || pts[0].Discount != 21.5 {
		t.Errorf("ForecastPoints = %+v", pts)
	}
	if ForecastPoints(nil) != nil {
		t.Error("nil forecast should yield nil points")
	}
	ls := newLatestStore(newMemoryRedis(), "pricewatch:latest:", time.Hour, testLogger)
	if got := ls.Key("Widget"); got != fmt.Sprintf("%s%s", "pricewatch:latest:", "Widget") {
		t.Errorf("Key = %q", got)
	}
}

// memoryRedis keeps values in a map and mimics redis.Nil for misses.
type memoryRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memoryRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = string(value.([]byte))
	m.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Close() error { return nil }

func TestLatestStorePublishAndGet(t *testing.T) {
	client := newMemoryRedis()
	ls := newLatestStore(client, "pricewatch:latest:", 6*time.Hour, testLogger)
	ctx := context.Background()

	snap := Snapshot{
		RunID:       "run-1",
		Product:     "Widget",
		GeneratedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Price:       1299,
		Discount:    "-20%",
		Rating:      "4.4",
		Defaulted:   []string{"reviews"},
		Forecast: []ForecastPoint{
			{Date: "2024-03-06", Discount: 20.5},
			{Date: "2024-03-07", Discount: 21},
		},
		Sentiment:      map[string]int{"POSITIVE": 2, "NEGATIVE": 1},
		Recommendation: "Hold the price.",
		Dispatched:     true,
	}
	if err := ls.Publish(ctx, snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if client.ttl["pricewatch:latest:Widget"] != 6*time.Hour {
		t.Errorf("ttl = %v", client.ttl["pricewatch:latest:Widget"])
	}

	got, err := ls.Get(ctx, "Widget")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot missing")
	}
	if got.RunID != "run-1" || got.Price != 1299 || !got.GeneratedAt.Equal(snap.GeneratedAt) || !got.Dispatched {
		t.Errorf("snapshot = %+v", got)
	}
	if len(got.Forecast) != 2 || got.Forecast[1] != snap.Forecast[1] {
		t.Errorf("forecast = %+v", got.Forecast)
	}
	if got.Sentiment["NEGATIVE"] != 1 || got.Defaulted[0] != "reviews" {
		t.Errorf("sentiment/defaulted = %v %v", got.Sentiment, got.Defaulted)
	}

	missing, err := ls.Get(ctx, "Gadget")
	if err != nil || missing != nil {
		t.Errorf("missing snapshot = %+v, %v; want nil, nil", missing, err)
	}
}

func TestLatestStorePublishFailure(t *testing.T) {
	client := newMemoryRedis()
	client.err = errors.New("connection refused")
	ls := newLatestStore(client, "p:", time.Hour, testLogger)

	err := ls.Publish(context.Background(), Snapshot{Product: "Widget"})
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "redis" {
		t.Errorf("expected redis StorageError, got %v", err)
	}
}

type recordingInserter struct {
	docs []any
	err  error
}

func (r *recordingInserter) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.docs = append(r.docs, document)
	return &mongo.InsertOneResult{InsertedID: len(r.docs)}, nil
}

func TestMongoMirrorDocuments(t *testing.T) {
	obsColl := &recordingInserter{}
	revColl := &recordingInserter{}
	m := newMongoMirror(obsColl, revColl, testLogger)
	ctx := context.Background()

	obs := types.Observation{
		Product: "Widget", Timestamp: day(4), Price: 1199, Discount: "-18%", Rating: "N/A",
		Extracted: types.Fields(types.FieldPrice | types.FieldDiscount),
	}
	if err := m.MirrorObservation(ctx, obs); err != nil {
		t.Fatal(err)
	}
	if err := m.MirrorReview(ctx, types.ReviewRecord{Product: "Widget", Text: "Solid", Timestamp: day(4)}); err != nil {
		t.Fatal(err)
	}

	if len(obsColl.docs) != 1 || len(revColl.docs) != 1 {
		t.Fatalf("docs = %d observations, %d reviews", len(obsColl.docs), len(revColl.docs))
	}
	doc := obsColl.docs[0].(bson.M)
	if doc["product"] != "Widget" || doc["price"] != 1199 || doc["date"] != "2024-03-04" {
		t.Errorf("observation doc = %v", doc)
	}
	if fmt.Sprint(doc["extracted"]) != "[price discount]" || fmt.Sprint(doc["defaulted"]) != "[rating reviews]" {
		t.Errorf("flags = %v / %v", doc["extracted"], doc["defaulted"])
	}
	if rev := revColl.docs[0].(bson.M); rev["review"] != "Solid" {
		t.Errorf("review doc = %v", rev)
	}

	revColl.err = errors.New("not primary")
	err := m.MirrorReview(ctx, types.ReviewRecord{Product: "Widget", Text: "x", Timestamp: day(4)})
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "mongodb" {
		t.Errorf("expected mongodb StorageError, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
