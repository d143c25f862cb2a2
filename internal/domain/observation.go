package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// maxEpochSeconds is 9999-12-31T23:59:59Z, the last instant RFC 3339 can represent.
const maxEpochSeconds = 253402300799

// RawObservation is the typed view of one raw OpenWeather document. Every
// group and leaf is optional; pointers distinguish "absent" from zero.
type RawObservation struct {
	Name    *string          `bson:"name" json:"name"`
	Dt      Epoch            `bson:"dt" json:"dt"`
	Main    *MainGroup       `bson:"main" json:"main"`
	Wind    *WindGroup       `bson:"wind" json:"wind"`
	Coord   *CoordGroup      `bson:"coord" json:"coord"`
	Sys     *SysGroup        `bson:"sys" json:"sys"`
	Rain    *PrecipGroup     `bson:"rain" json:"rain"`
	Snow    *PrecipGroup     `bson:"snow" json:"snow"`
	Weather []ConditionGroup `bson:"weather" json:"weather"`
}

// UnmarshalBSON decodes a raw document the way Epoch decodes dt: a group or
// leaf of the wrong BSON type is treated as absent, so one bad field does not
// cost the whole document. Only a malformed document is an error.
func (o *RawObservation) UnmarshalBSON(data []byte) error {
	doc := bson.Raw(data)
	if err := doc.Validate(); err != nil {
		return err
	}
	*o = RawObservation{Name: bsonString(doc, "name")}
	if rv, err := doc.LookupErr("dt"); err == nil {
		_ = o.Dt.UnmarshalBSONValue(rv.Type, rv.Value)
	}
	if g, ok := bsonDoc(doc, "main"); ok {
		o.Main = &MainGroup{Temp: bsonFloat(g, "temp"), Humidity: bsonFloat(g, "humidity")}
	}
	if g, ok := bsonDoc(doc, "wind"); ok {
		o.Wind = &WindGroup{Speed: bsonFloat(g, "speed")}
	}
	if g, ok := bsonDoc(doc, "coord"); ok {
		o.Coord = &CoordGroup{Lat: bsonFloat(g, "lat"), Lon: bsonFloat(g, "lon")}
	}
	if g, ok := bsonDoc(doc, "sys"); ok {
		o.Sys = &SysGroup{Country: bsonString(g, "country")}
	}
	if g, ok := bsonDoc(doc, "rain"); ok {
		o.Rain = &PrecipGroup{OneHour: bsonFloat(g, "1h")}
	}
	if g, ok := bsonDoc(doc, "snow"); ok {
		o.Snow = &PrecipGroup{OneHour: bsonFloat(g, "1h")}
	}
	o.Weather = bsonConditions(doc, "weather")
	return nil
}

func bsonDoc(doc bson.Raw, key string) (bson.Raw, bool) {
	rv, err := doc.LookupErr(key)
	if err != nil {
		return nil, false
	}
	return rv.DocumentOK()
}

// bsonFloat accepts int32, int64, double and numeric strings. NaN and
// infinities are dropped since the artifact is JSON.
func bsonFloat(doc bson.Raw, key string) *float64 {
	rv, err := doc.LookupErr(key)
	if err != nil {
		return nil
	}
	var f float64
	switch rv.Type {
	case bson.TypeDouble:
		f = rv.Double()
	case bson.TypeInt32:
		f = float64(rv.Int32())
	case bson.TypeInt64:
		f = float64(rv.Int64())
	case bson.TypeString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(rv.StringValue()), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func bsonString(doc bson.Raw, key string) *string {
	rv, err := doc.LookupErr(key)
	if err != nil {
		return nil
	}
	s, ok := rv.StringValueOK()
	if !ok {
		return nil
	}
	return &s
}

// bsonConditions keeps list positions: an element that is not a document
// decodes as an empty ConditionGroup.
func bsonConditions(doc bson.Raw, key string) []ConditionGroup {
	rv, err := doc.LookupErr(key)
	if err != nil {
		return nil
	}
	arr, ok := rv.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil
	}
	out := make([]ConditionGroup, len(values))
	for i, v := range values {
		if g, ok := v.DocumentOK(); ok {
			out[i] = ConditionGroup{Main: bsonString(g, "main"), Description: bsonString(g, "description")}
		}
	}
	return out
}

// MainGroup holds the "main" block.
type MainGroup struct {
	Temp     *float64 `bson:"temp" json:"temp"`
	Humidity *float64 `bson:"humidity" json:"humidity"`
}

// WindGroup holds the "wind" block.
type WindGroup struct {
	Speed *float64 `bson:"speed" json:"speed"`
}

// CoordGroup holds the "coord" block.
type CoordGroup struct {
	Lat *float64 `bson:"lat" json:"lat"`
	Lon *float64 `bson:"lon" json:"lon"`
}

// SysGroup holds the "sys" block.
type SysGroup struct {
	Country *string `bson:"country" json:"country"`
}

// PrecipGroup holds a "rain" or "snow" block. Only the one-hour volume is used.
type PrecipGroup struct {
	OneHour *float64 `bson:"1h" json:"1h"`
}

// ConditionGroup is one element of the "weather" list.
type ConditionGroup struct {
	Main        *string `bson:"main" json:"main"`
	Description *string `bson:"description" json:"description"`
}

// Epoch is a Unix timestamp in seconds as written by the extractor. Valid is
// false when the source value was missing, null, or not a usable number.
// Decoding never fails: an unusable dt is data, not a decode error.
type Epoch struct {
	Seconds float64
	Valid   bool
}

// EpochSeconds returns a valid Epoch for s.
func EpochSeconds(s int64) Epoch {
	return Epoch{Seconds: float64(s), Valid: true}
}

// Time converts the epoch to a UTC time. It returns false when e is not valid.
func (e Epoch) Time() (time.Time, bool) {
	if !e.Valid {
		return time.Time{}, false
	}
	sec, frac := math.Modf(e.Seconds)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true
}

// MarshalJSON writes the epoch as a number, or null when not valid.
func (e Epoch) MarshalJSON() ([]byte, error) {
	if !e.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(e.Seconds, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number or a numeric string.
func (e *Epoch) UnmarshalJSON(b []byte) error {
	*e = Epoch{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case json.Number:
		e.setString(x.String())
	case string:
		e.setString(x)
	}
	return nil
}

// UnmarshalBSONValue accepts int32, int64, double, numeric strings and BSON dates.
func (e *Epoch) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*e = Epoch{}
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeInt32:
		e.setFloat(float64(rv.Int32()))
	case bson.TypeInt64:
		e.setFloat(float64(rv.Int64()))
	case bson.TypeDouble:
		e.setFloat(rv.Double())
	case bson.TypeString:
		e.setString(rv.StringValue())
	case bson.TypeDateTime:
		e.setFloat(float64(rv.Time().UnixMilli()) / 1000)
	}
	return nil
}

func (e *Epoch) setString(s string) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return
	}
	e.setFloat(f)
}

func (e *Epoch) setFloat(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxEpochSeconds {
		return
	}
	e.Seconds = f
	e.Valid = true
}
