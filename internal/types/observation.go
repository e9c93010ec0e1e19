package types

import (
	"strings"
	"time"
)

// Documented defaults substituted when a field cannot be extracted.
const (
	DefaultPrice    = 0
	DefaultDiscount = "N/A"
	DefaultRating   = "N/A"
)

// Field identifies one extractable product field.
type Field uint8

const (
	FieldPrice Field = 1 << iota
	FieldDiscount
	FieldRating
	FieldReviews
)

// AllFields is the set of every extractable field.
const AllFields = FieldPrice | FieldDiscount | FieldRating | FieldReviews

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldPrice, "price"},
	{FieldDiscount, "discount"},
	{FieldRating, "rating"},
	{FieldReviews, "reviews"},
}

func (f Field) String() string {
	for _, fn := range fieldNames {
		if f == fn.f {
			return fn.name
		}
	}
	return "unknown"
}

// Fields is a set of Field flags. On an Observation it records which
// fields were genuinely scraped; the complement was defaulted.
type Fields uint8

// Has reports whether f is in the set.
func (s Fields) Has(f Field) bool { return s&Fields(f) != 0 }

// With returns the set with f added.
func (s Fields) With(f Field) Fields { return s | Fields(f) }

// Complement returns every field not in the set.
func (s Fields) Complement() Fields { return Fields(AllFields) &^ s }

// List returns the field names in the set, in a stable order.
func (s Fields) List() []string {
	var out []string
	for _, fn := range fieldNames {
		if s.Has(fn.f) {
			out = append(out, fn.name)
		}
	}
	return out
}

// String encodes the set as "price|discount". The empty set is "none".
func (s Fields) String() string {
	names := s.List()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseFields decodes the output of Fields.String. Unknown names are ignored.
func ParseFields(s string) Fields {
	var out Fields
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		for _, fn := range fieldNames {
			if part == fn.name {
				out = out.With(fn.f)
			}
		}
	}
	return out
}

// Product is one catalog entry.
type Product struct {
	Name string
	URL  string
}

// Observation is one ingestion result for a product. It is created once
// per ingestion attempt and never mutated.
type Observation struct {
	Product   string
	Timestamp time.Time
	Price     int
	// Discount holds the raw scraped text, e.g. "-20%". It is resolved to a
	// number only when a TimeSeries is derived.
	Discount  string
	Rating    string
	Extracted Fields
}

// Defaulted returns the fields that fell back to their defaults.
func (o Observation) Defaulted() Fields { return o.Extracted.Complement() }

// FetchFailed reports whether nothing at all could be extracted.
func (o Observation) FetchFailed() bool { return o.Extracted == 0 }

// DefaultedObservation builds the all-failed observation recorded when the
// page itself could not be loaded.
func DefaultedObservation(product string, ts time.Time) Observation {
	return Observation{
		Product:   product,
		Timestamp: ts,
		Price:     DefaultPrice,
		Discount:  DefaultDiscount,
		Rating:    DefaultRating,
	}
}

// ReviewRecord is one accumulated review text.
type ReviewRecord struct {
	Product   string
	Text      string
	Timestamp time.Time
}

// PartialRecord is what the extractor recovers from one product page.
type PartialRecord struct {
	Price     int
	Discount  string
	Rating    string
	Reviews   []string
	Extracted Fields
	Errors    []*ExtractionError
}

// Observation turns the record into an Observation for product at ts.
func (r PartialRecord) Observation(product string, ts time.Time) Observation {
	return Observation{
		Product:   product,
		Timestamp: ts,
		Price:     r.Price,
		Discount:  r.Discount,
		Rating:    r.Rating,
		Extracted: r.Extracted,
	}
}
