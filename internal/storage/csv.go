package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// Column names of the history files. The first four observation columns and
// the first two review columns are the legacy layout; files that only carry
// those still load, and appends to them keep their header.
const (
	ColProduct   = "product_name"
	ColPrice     = "Price"
	ColDiscount  = "Discount"
	ColDate      = "Date"
	ColRating    = "Rating"
	ColExtracted = "Extracted"
	ColTimestamp = "Timestamp"
	ColReview    = "review"

	dateLayout = "2006-01-02"
)

var (
	observationHeader = []string{ColProduct, ColPrice, ColDiscount, ColDate, ColRating, ColExtracted, ColTimestamp}
	reviewHeader      = []string{ColProduct, ColReview, ColDate}
)

// CSVStore is the file-backed system of record: one append-only CSV file for
// observations and one for reviews.
type CSVStore struct {
	obsPath    string
	reviewPath string
	headers    map[string][]string
	mu         sync.RWMutex
	count      int
	logger     *slog.Logger
}

// NewCSVStore creates a CSV store writing obsFile and reviewFile under dir.
func NewCSVStore(dir, obsFile, reviewFile string, logger *slog.Logger) (*CSVStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSVStore{
		obsPath:    filepath.Join(dir, obsFile),
		reviewPath: filepath.Join(dir, reviewFile),
		headers:    make(map[string][]string),
		logger:     logger.With("component", "csv_store"),
	}, nil
}

func (s *CSVStore) Name() string { return "csv" }

// ObservationPath returns the observation file location.
func (s *CSVStore) ObservationPath() string { return s.obsPath }

// ReviewPath returns the review file location.
func (s *CSVStore) ReviewPath() string { return s.reviewPath }

func (s *CSVStore) AppendObservation(ctx context.Context, obs types.Observation) error {
	row := map[string]string{
		ColProduct:   obs.Product,
		ColPrice:     strconv.Itoa(obs.Price),
		ColDiscount:  obs.Discount,
		ColDate:      obs.Timestamp.Format(dateLayout),
		ColRating:    obs.Rating,
		ColExtracted: obs.Extracted.String(),
		ColTimestamp: obs.Timestamp.Format(time.RFC3339),
	}
	if err := s.appendRow(s.obsPath, observationHeader, row); err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "append observation", Err: err}
	}
	return nil
}

func (s *CSVStore) AppendReview(ctx context.Context, rev types.ReviewRecord) error {
	row := map[string]string{
		ColProduct: rev.Product,
		ColReview:  rev.Text,
		ColDate:    rev.Timestamp.Format(dateLayout),
	}
	if err := s.appendRow(s.reviewPath, reviewHeader, row); err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "append review", Err: err}
	}
	return nil
}

// appendRow writes one record, projected onto the file's existing header
// (or defaultHeader for a new file), and flushes it before returning.
func (s *CSVStore) appendRow(path string, defaultHeader []string, row map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, ok := s.headers[path]
	if !ok {
		existing, err := readHeader(path)
		if err != nil {
			return err
		}
		header = existing
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if header == nil {
		header = defaultHeader
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	s.headers[path] = header

	record := make([]string, len(header))
	for i, col := range header {
		record[i] = row[col]
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	s.count++
	return nil
}

// readHeader returns the first record of path, or nil if the file is
// missing or empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return trimHeader(header), nil
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

// readRows returns every data row of path as column maps.
func (s *CSVStore) readRows(path string) ([]map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	header = trimHeader(header)

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *CSVStore) ObservationsFor(ctx context.Context, product string) ([]types.Observation, error) {
	rows, err := s.readRows(s.obsPath)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "read observations", Err: err}
	}
	var out []types.Observation
	for _, row := range rows {
		if row[ColProduct] != product {
			continue
		}
		obs, ok := observationFromRow(row)
		if !ok {
			s.logger.Debug("skipping unreadable observation row", "product", product, "row", row)
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (s *CSVStore) ReviewsFor(ctx context.Context, product string) ([]types.ReviewRecord, error) {
	rows, err := s.readRows(s.reviewPath)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "read reviews", Err: err}
	}
	var out []types.ReviewRecord
	for _, row := range rows {
		if row[ColProduct] != product {
			continue
		}
		rev := types.ReviewRecord{Product: product, Text: row[ColReview]}
		if d, err := time.Parse(dateLayout, strings.TrimSpace(row[ColDate])); err == nil {
			rev.Timestamp = d
		}
		out = append(out, rev)
	}
	return out, nil
}

func (s *CSVStore) SeriesFor(ctx context.Context, product string) (types.TimeSeries, error) {
	obs, err := s.ObservationsFor(ctx, product)
	if err != nil {
		return types.TimeSeries{Product: product}, err
	}
	return BuildSeries(product, obs), nil
}

func (s *CSVStore) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Info("CSV history closed", "observations", s.obsPath, "reviews", s.reviewPath, "rows_written", s.count)
	return nil
}

// observationFromRow decodes one observation row. Rows from the legacy
// layout have no provenance column; their flags are inferred from whether
// each value differs from its default.
func observationFromRow(row map[string]string) (types.Observation, bool) {
	obs := types.Observation{
		Product:  row[ColProduct],
		Discount: row[ColDiscount],
		Rating:   types.DefaultRating,
	}

	ts, ok := parseTimestamp(row[ColTimestamp], row[ColDate])
	if !ok {
		return obs, false
	}
	obs.Timestamp = ts

	price, err := strconv.Atoi(strings.TrimSpace(row[ColPrice]))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(row[ColPrice]), 64); ferr == nil {
			price = int(f)
		}
	}
	obs.Price = price

	if r, ok := row[ColRating]; ok && r != "" {
		obs.Rating = r
	}
	if obs.Discount == "" {
		obs.Discount = types.DefaultDiscount
	}

	if flags, ok := row[ColExtracted]; ok && flags != "" {
		obs.Extracted = types.ParseFields(flags)
	} else {
		if obs.Price != types.DefaultPrice {
			obs.Extracted = obs.Extracted.With(types.FieldPrice)
		}
		if obs.Discount != types.DefaultDiscount {
			obs.Extracted = obs.Extracted.With(types.FieldDiscount)
		}
		if obs.Rating != types.DefaultRating {
			obs.Extracted = obs.Extracted.With(types.FieldRating)
		}
	}
	return obs, true
}

func parseTimestamp(ts, date string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(ts)); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateLayout, strings.TrimSpace(date)); err == nil {
		return t, true
	}
	return time.Time{}, false
}
