package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reading is a validated row ready for the weather_readings table. Numeric
// columns are never null and ObservedAt is always set, in UTC.
type Reading struct {
	City        *string
	Country     *string
	Lat         float64
	Lon         float64
	ObservedAt  time.Time
	TempC       float64
	HumidityPct float64
	WindSpeedMS float64
	Rain1hMM    float64
	Snow1hMM    float64
	Condition   *string
	Description *string
	Provider    string
}

// NaturalKey identifies one logical observation: (city, observed_at, provider).
// A null city is its own key value, distinct from the empty string.
type NaturalKey struct {
	City       string
	HasCity    bool
	ObservedAt int64 // Unix microseconds, the precision of TIMESTAMPTZ
	Provider   string
}

// Key returns the reading's natural key.
func (r Reading) Key() NaturalKey {
	k := NaturalKey{ObservedAt: r.ObservedAt.UnixMicro(), Provider: r.Provider}
	if r.City != nil {
		k.City, k.HasCity = *r.City, true
	}
	return k
}

func (k NaturalKey) String() string {
	city := "<null>"
	if k.HasCity {
		city = strconv.Quote(k.City)
	}
	return fmt.Sprintf("%s|%s|%s", city, time.UnixMicro(k.ObservedAt).UTC().Format(time.RFC3339Nano), k.Provider)
}

// Rejection describes an artifact record dropped during normalization.
type Rejection struct {
	Index  int
	Value  string
	Reason string
}

var errNoTimestamp = errors.New("observed_at is null")

// observedAtLayouts are tried in order. Layouts without a zone are read as UTC.
var observedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseObservedAt coerces an artifact timestamp into a UTC time truncated to
// microseconds. Besides the layouts above it accepts integer epoch seconds.
func ParseObservedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("observed_at is empty")
	}
	for _, layout := range observedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= -maxEpochSeconds && n <= maxEpochSeconds {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable observed_at %q", s)
}

// Normalize coerces artifact records into readings. Records whose
// observed_at is null or unparseable are dropped and reported; every null
// numeric becomes 0. Input order is preserved.
func Normalize(records []FlatRecord) ([]Reading, []Rejection) {
	out := make([]Reading, 0, len(records))
	var rejected []Rejection
	for i := range records {
		rec := &records[i]
		ts, err := coerceObservedAt(rec.ObservedAt)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Value: stringOrEmpty(rec.ObservedAt), Reason: err.Error()})
			continue
		}
		out = append(out, Reading{
			City:        rec.City,
			Country:     rec.Country,
			Lat:         floatOrZero(rec.Lat),
			Lon:         floatOrZero(rec.Lon),
			ObservedAt:  ts,
			TempC:       floatOrZero(rec.TempC),
			HumidityPct: floatOrZero(rec.HumidityPct),
			WindSpeedMS: floatOrZero(rec.WindSpeedMS),
			Rain1hMM:    floatOrZero(rec.Rain1hMM),
			Snow1hMM:    floatOrZero(rec.Snow1hMM),
			Condition:   rec.Condition,
			Description: rec.Description,
			Provider:    rec.Provider,
		})
	}
	return out, rejected
}

// Deduplicate keeps the first reading for each natural key and returns the
// survivors in input order along with the number removed.
func Deduplicate(readings []Reading) ([]Reading, int) {
	seen := make(map[NaturalKey]struct{}, len(readings))
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(readings) - len(out)
}

func coerceObservedAt(s *string) (time.Time, error) {
	if s == nil {
		return time.Time{}, errNoTimestamp
	}
	return ParseObservedAt(*s)
}

func floatOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
