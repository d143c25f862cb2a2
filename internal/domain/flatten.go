package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// DefaultProvider identifies the OpenWeather integration in the provider column.
const DefaultProvider = "openweather"

// FlatRecord field names, as they appear in the artifact and the table.
const (
	FieldCity        = "city"
	FieldCountry     = "country"
	FieldLat         = "lat"
	FieldLon         = "lon"
	FieldObservedAt  = "observed_at"
	FieldTempC       = "temp_c"
	FieldHumidityPct = "humidity_pct"
	FieldWindSpeedMS = "wind_speed_ms"
	FieldRain1hMM    = "rain_1h_mm"
	FieldSnow1hMM    = "snow_1h_mm"
	FieldCondition   = "condition"
	FieldDescription = "description"
)

// FlatRecord is one row of the intermediate artifact. Nullable columns are
// pointers; a nil ObservedAt means the source had no usable dt.
type FlatRecord struct {
	City        *string  `json:"city"`
	Country     *string  `json:"country"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	ObservedAt  *string  `json:"observed_at"`
	TempC       *float64 `json:"temp_c"`
	HumidityPct *float64 `json:"humidity_pct"`
	WindSpeedMS *float64 `json:"wind_speed_ms"`
	Rain1hMM    *float64 `json:"rain_1h_mm"`
	Snow1hMM    *float64 `json:"snow_1h_mm"`
	Condition   *string  `json:"condition"`
	Description *string  `json:"description"`
	Provider    string   `json:"provider"`
}

// UnmarshalJSON decodes observed_at leniently. A number keeps its literal
// text and any other non-string value its raw JSON, so a bad timestamp is
// dropped with its record by Normalize instead of failing the whole artifact.
func (r *FlatRecord) UnmarshalJSON(b []byte) error {
	type plain FlatRecord
	var aux struct {
		plain
		ObservedAt json.RawMessage `json:"observed_at"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = FlatRecord(aux.plain)
	r.ObservedAt = observedAtText(aux.ObservedAt)
	return nil
}

func observedAtText(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	text := string(raw)
	return &text
}

// Defaults lists the FlatRecord fields that had no value in the source
// document, in column order. Fields listed here are null in the record,
// except rain_1h_mm and snow_1h_mm which are 0.
type Defaults []string

// Has reports whether field was absent in the source.
func (d Defaults) Has(field string) bool {
	return slices.Contains(d, field)
}

// Flatten normalizes one raw document into a FlatRecord. Missing groups are
// treated as empty groups. It performs no validation: a record without a
// timestamp is still returned, with ObservedAt nil.
func Flatten(raw RawObservation, provider string) (FlatRecord, Defaults) {
	var d Defaults
	note := func(field string, present bool) {
		if !present {
			d = append(d, field)
		}
	}

	mg := derefOr(raw.Main, MainGroup{})
	wind := derefOr(raw.Wind, WindGroup{})
	coord := derefOr(raw.Coord, CoordGroup{})
	sys := derefOr(raw.Sys, SysGroup{})
	rain := derefOr(raw.Rain, PrecipGroup{})
	snow := derefOr(raw.Snow, PrecipGroup{})
	var cond ConditionGroup
	if len(raw.Weather) > 0 {
		cond = raw.Weather[0]
	}

	rec := FlatRecord{
		City:        raw.Name,
		Country:     sys.Country,
		Lat:         coord.Lat,
		Lon:         coord.Lon,
		ObservedAt:  formatObservedAt(raw.Dt),
		TempC:       mg.Temp,
		HumidityPct: mg.Humidity,
		WindSpeedMS: wind.Speed,
		Rain1hMM:    zeroIfNil(rain.OneHour),
		Snow1hMM:    zeroIfNil(snow.OneHour),
		Condition:   cond.Main,
		Description: cond.Description,
		Provider:    provider,
	}

	note(FieldCity, raw.Name != nil)
	note(FieldCountry, sys.Country != nil)
	note(FieldLat, coord.Lat != nil)
	note(FieldLon, coord.Lon != nil)
	note(FieldObservedAt, rec.ObservedAt != nil)
	note(FieldTempC, mg.Temp != nil)
	note(FieldHumidityPct, mg.Humidity != nil)
	note(FieldWindSpeedMS, wind.Speed != nil)
	note(FieldRain1hMM, rain.OneHour != nil)
	note(FieldSnow1hMM, snow.OneHour != nil)
	note(FieldCondition, cond.Main != nil)
	note(FieldDescription, cond.Description != nil)

	return rec, d
}

// FlattenAll flattens a batch and tallies how often each field was absent.
// An empty input yields an empty, non-nil slice.
func FlattenAll(raws []RawObservation, provider string) ([]FlatRecord, map[string]int) {
	out := make([]FlatRecord, 0, len(raws))
	tally := make(map[string]int)
	for i := range raws {
		rec, d := Flatten(raws[i], provider)
		out = append(out, rec)
		for _, f := range d {
			tally[f]++
		}
	}
	return out, tally
}

func formatObservedAt(e Epoch) *string {
	t, ok := e.Time()
	if !ok {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func zeroIfNil(p *float64) *float64 {
	v := 0.0
	if p != nil {
		v = *p
	}
	return &v
}
