// Command validate checks a flattened artifact against the raw documents it
// was produced from. It re-runs the flatten stage on the raw fixture,
// compares the result record by record, verifies the column contract the
// load stage relies on, and reports what a load would insert.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -raw data/mock/raw_observations.json \
//	  -artifact /tmp/weather_pipeline/weather_flattened.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/couchcryptid/weather-readings-etl/internal/artifact"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	rawPath := flag.String("raw", "", "path to the raw observation documents (JSON array)")
	artifactPath := flag.String("artifact", "", "path to the flattened artifact to check")
	provider := flag.String("provider", domain.DefaultProvider, "provider the artifact was produced with")
	flag.Parse()

	if *rawPath == "" || *artifactPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*rawPath, *artifactPath, *provider); code != 0 {
		os.Exit(code)
	}
}

func run(rawPath, artifactPath, provider string) int {
	fmt.Println("=== Weather Artifact Validation ===")
	fmt.Println()

	raws, err := loadRaw(rawPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw documents: %v\n", err)
		return 1
	}

	records, err := artifact.NewFileStore(artifactPath).Read(context.Background(), artifactPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read artifact: %v\n", err)
		return 1
	}

	readings, rejected := domain.Normalize(records)
	unique, dups := domain.Deduplicate(readings)

	phases := []*phase{
		validateFlattenParity(raws, records, provider),
		validateColumnContract(raws, records, provider),
		validateLoadReadiness(records, readings, rejected, unique),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d raw, %d artifact, %d dropped, %d duplicates, %d loadable\n",
		len(raws), len(records), len(rejected), dups, len(unique))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadRaw(path string) ([]domain.RawObservation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raws []domain.RawObservation
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// ── Phase 1: Flatten Parity ──
// Re-flattens the raw documents and compares with the artifact in order.

func validateFlattenParity(raws []domain.RawObservation, records []domain.FlatRecord, provider string) *phase {
	p := &phase{name: "Phase 1: Flatten Parity (raw vs artifact)"}

	want, _ := domain.FlattenAll(raws, provider)
	if len(want) != len(records) {
		p.errorf("record count: expected %d, got %d", len(want), len(records))
		return p
	}
	for i := range want {
		if diff := cmp.Diff(want[i], records[i]); diff != "" {
			p.errorf("record %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	return p
}

// ── Phase 2: Column Contract ──
// Precipitation is never null, provider is set, and observed_at is null
// exactly where the source had no usable dt.

func validateColumnContract(raws []domain.RawObservation, records []domain.FlatRecord, provider string) *phase {
	p := &phase{name: "Phase 2: Column Contract"}

	for i := range records {
		rec := &records[i]
		if rec.Rain1hMM == nil {
			p.errorf("record %d: rain_1h_mm is null", i)
		}
		if rec.Snow1hMM == nil {
			p.errorf("record %d: snow_1h_mm is null", i)
		}
		if rec.Provider != provider {
			p.errorf("record %d: provider %q, want %q", i, rec.Provider, provider)
		}
		if i >= len(raws) {
			continue
		}
		_, hasDt := raws[i].Dt.Time()
		if hasDt != (rec.ObservedAt != nil) {
			p.errorf("record %d: source dt usable=%t but observed_at set=%t", i, hasDt, rec.ObservedAt != nil)
		}
	}
	return p
}

// ── Phase 3: Load Readiness ──
// Every kept reading has a UTC microsecond timestamp and the deduplicated
// batch has unique natural keys.

func validateLoadReadiness(records []domain.FlatRecord, readings []domain.Reading, rejected []domain.Rejection, unique []domain.Reading) *phase {
	p := &phase{name: "Phase 3: Load Readiness (normalize + dedup)"}

	if len(readings)+len(rejected) != len(records) {
		p.errorf("normalize lost records: %d kept + %d dropped != %d", len(readings), len(rejected), len(records))
	}
	for _, r := range rejected {
		fmt.Printf("  Note: record %d dropped (%s)\n", r.Index, r.Reason)
	}

	for i := range readings {
		ts := readings[i].ObservedAt
		if ts.Location() != time.UTC {
			p.errorf("reading %d: observed_at %s is not UTC", i, ts)
		}
		if !ts.Equal(ts.Truncate(time.Microsecond)) {
			p.errorf("reading %d: observed_at %s has sub-microsecond precision", i, ts)
		}
	}

	seen := make(map[domain.NaturalKey]int, len(unique))
	for i := range unique {
		k := unique[i].Key()
		if prev, dup := seen[k]; dup {
			p.errorf("readings %d and %d share natural key %s", prev, i, k)
			continue
		}
		seen[k] = i
	}
	return p
}
