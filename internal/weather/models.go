package weather

import (
	"strconv"
	"time"
)

// SourceOpenMeteo identifies records fetched from the Open-Meteo forecast API.
const SourceOpenMeteo = "open-meteo"

// DateLayout is the calendar date format used on the wire and on the CLI.
const DateLayout = "2006-01-02"

// Location is a query point. It is not persisted on its own.
type Location struct {
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Key returns a canonical string key for this location, used in logs.
func (l Location) Key() string {
	return formatCoord(l.Latitude) + "," + formatCoord(l.Longitude)
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtefield=Start"`
}

// NewDateRange truncates both ends to calendar dates in UTC.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: toDate(start), End: toDate(end)}
}

// TrailingDays returns the range of the given number of days ending on today.
func TrailingDays(today time.Time, days int) DateRange {
	end := toDate(today)
	return DateRange{Start: end.AddDate(0, 0, -days), End: end}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, &ValidationError{Field: "start", Reason: "expected YYYY-MM-DD, got " + strconv.Quote(start)}
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, &ValidationError{Field: "end", Reason: "expected YYYY-MM-DD, got " + strconv.Quote(end)}
	}
	return DateRange{Start: s, End: e}, nil
}

// StartDate returns the start formatted as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }

// EndDate returns the end formatted as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format(DateLayout) }

// RawPayload is the validated shape of a provider response: a timestamp
// column plus one co-indexed value column per returned variable.
// A nil element in a series is a provider null.
type RawPayload struct {
	Times  []string
	Series map[string][]*float64

	// Grid point and timezone the provider resolved the query to.
	Latitude         float64
	Longitude        float64
	Timezone         string
	UTCOffsetSeconds int
}

// Has reports whether the payload carries a column for the variable.
func (p RawPayload) Has(name string) bool {
	_, ok := p.Series[name]
	return ok
}

// Measurement is a single variable value inside a record.
type Measurement struct {
	Name  string
	Value *float64
}

// RecordKey is the natural key of an observation.
type RecordKey struct {
	Source    string  `json:"source"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Timestamp string  `json:"timestamp"`
}

// String renders the key for logs and error messages.
func (k RecordKey) String() string {
	return k.Source + "@" + formatCoord(k.Latitude) + "," + formatCoord(k.Longitude) + "/" + k.Timestamp
}

// ObservationRecord is one flattened time step, the unit of storage.
type ObservationRecord struct {
	Source    string
	Latitude  float64
	Longitude float64
	Timestamp string // ISO-8601 as returned by the provider

	// Values follow the requested variable order.
	Values []Measurement

	IngestedAt time.Time
	RunID      string
}

// Key returns the record's natural key.
func (r ObservationRecord) Key() RecordKey {
	return RecordKey{
		Source:    r.Source,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timestamp: r.Timestamp,
	}
}

// Value returns the value for a variable and whether the record has the field.
func (r ObservationRecord) Value(name string) (*float64, bool) {
	for _, m := range r.Values {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// ValueMap returns the measurements keyed by variable name.
func (r ObservationRecord) ValueMap() map[string]*float64 {
	out := make(map[string]*float64, len(r.Values))
	for _, m := range r.Values {
		out[m.Name] = m.Value
	}
	return out
}

// SameValues reports whether both records carry the same variables with equal values.
func (r ObservationRecord) SameValues(other ObservationRecord) bool {
	if len(r.Values) != len(other.Values) {
		return false
	}
	theirs := other.ValueMap()
	for _, m := range r.Values {
		v, ok := theirs[m.Name]
		if !ok || !equalValue(m.Value, v) {
			return false
		}
	}
	return true
}

func equalValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
