// Command genmock generates a deterministic fixture of raw OpenWeather
// observation documents, including the malformed shapes the pipeline has to
// tolerate. It runs the fixture through the domain package to report what
// the flatten and load stages will make of it, and can seed a MongoDB
// collection with it for local runs.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/raw_observations.json \
//	  -flat-out data/mock/flattened.json \
//	  -mongo-uri mongodb://127.0.0.1:27017
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/adapter/mongo"
	"github.com/couchcryptid/weather-readings-etl/internal/config"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
)

const baseEpoch = 1700000000 // 2023-11-14T22:13:20Z

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
}

var cities = []city{
	{"Paris", "FR", 48.8534, 2.3488},
	{"Oslo", "NO", 59.9127, 10.7461},
	{"Lagos", "NG", 6.4541, 3.3947},
	{"Lima", "PE", -12.0432, -77.0282},
	{"Tokyo", "JP", 35.6895, 139.6917},
}

var conditions = []struct{ main, description string }{
	{"Clear", "clear sky"},
	{"Clouds", "overcast clouds"},
	{"Rain", "light rain"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock/raw_observations.json", "output path for the raw document fixture")
	flatOut := flag.String("flat-out", "", "optional output path for the flattened artifact")
	hours := flag.Int("hours", 2, "hourly observations per city")
	mongoURI := flag.String("mongo-uri", "", "seed this MongoDB deployment when set")
	mongoDB := flag.String("db", "weather_raw", "MongoDB database to seed")
	mongoColl := flag.String("collection", "weather_raw", "MongoDB collection to seed")
	flag.Parse()

	if *hours < 1 {
		flag.Usage()
		return fmt.Errorf("-hours must be at least 1")
	}

	docs := generate(*hours)
	if err := writeJSON(*out, docs); err != nil {
		return fmt.Errorf("writing raw fixture: %w", err)
	}
	log.Printf("wrote raw fixture: %s (%d documents)", *out, len(docs))

	raws, err := decode(docs)
	if err != nil {
		return err
	}
	records, defaulted := domain.FlattenAll(raws, domain.DefaultProvider)
	if *flatOut != "" {
		if err := writeJSON(*flatOut, records); err != nil {
			return fmt.Errorf("writing flattened fixture: %w", err)
		}
		log.Printf("wrote flattened fixture: %s", *flatOut)
	}
	printStats(records, defaulted)

	if *mongoURI != "" {
		return seed(*mongoURI, *mongoDB, *mongoColl, docs)
	}
	return nil
}

// generate builds hours observations for every city, then appends the edge
// cases: no groups at all, null and unparseable dt, a numeric-string dt, a
// natural-key duplicate and a document without a name.
func generate(hours int) []map[string]any {
	docs := make([]map[string]any, 0, hours*len(cities)+6)
	for h := range hours {
		for i, c := range cities {
			cond := conditions[(i+h)%len(conditions)]
			doc := map[string]any{
				"name":  c.name,
				"dt":    baseEpoch + h*3600,
				"coord": map[string]any{"lat": c.lat, "lon": c.lon},
				"sys":   map[string]any{"country": c.country},
				"main": map[string]any{
					"temp":     10 + 3*float64(i) - 0.5*float64(h),
					"humidity": 60 + 5*i + h,
				},
				"wind": map[string]any{"speed": 1.5 + 0.5*float64(i) + 0.25*float64(h)},
			}
			if cond.main == "Rain" {
				doc["rain"] = map[string]any{"1h": 0.25 * float64(i+1)}
			}
			if c.name == "Oslo" && h%2 == 1 {
				cond = struct{ main, description string }{"Snow", "light snow"}
				doc["snow"] = map[string]any{"1h": 0.5}
			}
			doc["weather"] = []any{map[string]any{"main": cond.main, "description": cond.description}}
			docs = append(docs, doc)
		}
	}

	docs = append(docs,
		map[string]any{"name": "Nowhere"},
		map[string]any{"name": "Reykjavik", "dt": nil, "main": map[string]any{"temp": -1.5}},
		map[string]any{"name": "Quito", "dt": "not-a-timestamp", "coord": map[string]any{"lat": -0.2299, "lon": -78.525}},
		map[string]any{"name": "Cairo", "dt": "1700007200", "main": map[string]any{"temp": 24, "humidity": 30}},
		map[string]any{"name": "Paris", "dt": baseEpoch, "main": map[string]any{"temp": 99}},
		map[string]any{"dt": baseEpoch, "main": map[string]any{"temp": 5}},
	)
	return docs
}

func decode(docs []map[string]any) ([]domain.RawObservation, error) {
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("marshal fixture: %w", err)
	}
	var raws []domain.RawObservation
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return raws, nil
}

func seed(uri, db, coll string, docs []map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := &config.Config{MongoURI: uri, MongoDatabase: db, MongoCollection: coll}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src, err := mongo.Connect(ctx, cfg, logger, observability.NewMetricsForTesting())
	if err != nil {
		return err
	}
	defer func() { _ = src.Close(context.Background()) }()

	n, err := src.Seed(ctx, docs)
	if err != nil {
		return err
	}
	log.Printf("seeded %s.%s with %d documents", db, coll, n)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(records []domain.FlatRecord, defaulted map[string]int) {
	readings, rejected := domain.Normalize(records)
	unique, dups := domain.Deduplicate(readings)

	fmt.Println("\n=== Fixture Stats ===")
	fmt.Printf("Records:    %d\n", len(records))
	fmt.Printf("Dropped:    %d (no usable observed_at)\n", len(rejected))
	fmt.Printf("Duplicates: %d\n", dups)
	fmt.Printf("Loadable:   %d\n", len(unique))

	fields := make([]string, 0, len(defaulted))
	for f := range defaulted {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	fmt.Println("\nDefaulted fields:")
	for _, f := range fields {
		fmt.Printf("  %-14s %d\n", f, defaulted[f])
	}
}
