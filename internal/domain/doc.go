// Package domain models OpenWeather current-conditions observations on their
// way from the raw document store to the weather_readings table.
//
// # Data Source
//
// The upstream extractor stores the JSON body of each OpenWeather
// "current weather" response verbatim as one MongoDB document. Nothing about
// the document is guaranteed: any group may be missing, null, or partially
// populated, and the extractor has written several generations of documents.
//
// # OpenWeather Document Conventions
//
// Groups used by the pipeline:
//
//	name             city name as reported by OpenWeather ("Paris")
//	dt               observation time, Unix epoch seconds, UTC
//	main.temp        temperature, °C (the extractor requests units=metric)
//	main.humidity    relative humidity, %
//	wind.speed       wind speed, m/s
//	coord.lat/lon    WGS-84 coordinates of the station
//	sys.country      ISO 3166 alpha-2 country code
//	rain["1h"]       rain volume over the last hour, mm
//	snow["1h"]       snow volume over the last hour, mm
//	weather[0]       primary condition group {main, description}
//
// rain and snow are only present when precipitation was measured, so their
// absence means zero. Every other missing leaf is recorded as null and only
// filled at load time.
//
// The dt field has been seen as int32, int64, double and, in older
// documents, as a numeric string. Anything else (null, empty string,
// garbage) leaves the observation without a timestamp; such records are
// dropped by the loader, never by the flattener.
//
// # Natural Key
//
// An observation is identified by (city, observed_at, provider). The
// relational store enforces it with a unique constraint and the loader
// deduplicates on it before inserting with ON CONFLICT DO NOTHING, which
// makes re-running a load a no-op. See [NaturalKey].
package domain
