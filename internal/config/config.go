package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration marks a missing or invalid setting. Load fails fast with
// it before any store is contacted.
var ErrConfiguration = errors.New("configuration error")

// Config holds all service settings. It is built once by Load and passed by
// reference to every component constructor.
type Config struct {
	MongoURI        string `validate:"required"`
	MongoDatabase   string `validate:"required"`
	MongoCollection string `validate:"required"`

	PostgresDSN    string `validate:"required"`
	DatabaseDriver string `validate:"oneof=postgres sqlite"`

	ArtifactDriver      string `validate:"oneof=fs s3"`
	ArtifactPath        string `validate:"required_if=ArtifactDriver fs"`
	ArtifactS3Bucket    string `validate:"required_if=ArtifactDriver s3"`
	ArtifactS3Prefix    string
	ArtifactS3Region    string
	ArtifactS3Endpoint  string
	ArtifactS3PathStyle bool
	ArtifactCleanup     bool

	Provider         string `validate:"required"`
	ScheduleInterval time.Duration
	BreakerTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`
	HandoffTTL    time.Duration

	KafkaBrokers   []string
	KafkaRunsTopic string `validate:"required_with=KafkaBrokers"`

	HTTPAddr        string `validate:"required"`
	LogLevel        string `validate:"oneof=debug info warn warning error"`
	LogFormat       string `validate:"oneof=json text"`
	ShutdownTimeout time.Duration
}

// envNames maps Config fields to the variables they are read from, for error messages.
var envNames = map[string]string{
	"MongoURI":         "MONGO_URI",
	"MongoDatabase":    "MONGO_DB",
	"MongoCollection":  "MONGO_COLLECTION",
	"PostgresDSN":      "POSTGRES_STRING",
	"DatabaseDriver":   "DATABASE_DRIVER",
	"ArtifactDriver":   "ARTIFACT_DRIVER",
	"ArtifactPath":     "TRANSFORM_OUTPUT",
	"ArtifactS3Bucket": "ARTIFACT_S3_BUCKET",
	"Provider":         "PROVIDER",
	"RedisDB":          "REDIS_DB",
	"KafkaRunsTopic":   "KAFKA_RUNS_TOPIC",
	"HTTPAddr":         "HTTP_ADDR",
	"LogLevel":         "LOG_LEVEL",
	"LogFormat":        "LOG_FORMAT",
}

var defaults = map[string]any{
	"MONGO_URI":              "mongodb://127.0.0.1:27017/weather_raw?authSource=admin",
	"MONGO_DB":               "weather_raw",
	"MONGO_COLLECTION":       "weather_raw",
	"DATABASE_DRIVER":        "postgres",
	"ARTIFACT_DRIVER":        "fs",
	"TRANSFORM_OUTPUT":       "/tmp/weather_pipeline/weather_flattened.json",
	"ARTIFACT_S3_PREFIX":     "weather/",
	"ARTIFACT_S3_REGION":     "us-east-1",
	"ARTIFACT_S3_PATH_STYLE": false,
	"ARTIFACT_CLEANUP":       false,
	"PROVIDER":               "openweather",
	"SCHEDULE_INTERVAL":      "1h",
	"BREAKER_TIMEOUT":        "5m",
	"REDIS_DB":               0,
	"HANDOFF_TTL":            "24h",
	"KAFKA_RUNS_TOPIC":       "weather-etl-runs",
	"HTTP_ADDR":              ":8080",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "json",
	"SHUTDOWN_TIMEOUT":       "10s",
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is loaded first without
// overriding variables that are already set, and CONFIG_FILE may name a
// YAML file whose keys use the same names as the variables.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	v := viper.New()
	for key, def := range defaults {
		v.SetDefault(key, def)
	}
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read CONFIG_FILE %s: %v", ErrConfiguration, path, err)
		}
	}

	cfg := &Config{
		MongoURI:            v.GetString("MONGO_URI"),
		MongoDatabase:       v.GetString("MONGO_DB"),
		MongoCollection:     v.GetString("MONGO_COLLECTION"),
		PostgresDSN:         v.GetString("POSTGRES_STRING"),
		DatabaseDriver:      strings.ToLower(v.GetString("DATABASE_DRIVER")),
		ArtifactDriver:      strings.ToLower(v.GetString("ARTIFACT_DRIVER")),
		ArtifactPath:        v.GetString("TRANSFORM_OUTPUT"),
		ArtifactS3Bucket:    v.GetString("ARTIFACT_S3_BUCKET"),
		ArtifactS3Prefix:    v.GetString("ARTIFACT_S3_PREFIX"),
		ArtifactS3Region:    v.GetString("ARTIFACT_S3_REGION"),
		ArtifactS3Endpoint:  v.GetString("ARTIFACT_S3_ENDPOINT"),
		ArtifactS3PathStyle: v.GetBool("ARTIFACT_S3_PATH_STYLE"),
		ArtifactCleanup:     v.GetBool("ARTIFACT_CLEANUP"),
		Provider:            v.GetString("PROVIDER"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             v.GetInt("REDIS_DB"),
		KafkaBrokers:        sharedcfg.ParseBrokers(v.GetString("KAFKA_BROKERS")),
		KafkaRunsTopic:      v.GetString("KAFKA_RUNS_TOPIC"),
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		LogLevel:            strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:           strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCHEDULE_INTERVAL", &cfg.ScheduleInterval},
		{"BREAKER_TIMEOUT", &cfg.BreakerTimeout},
		{"HANDOFF_TTL", &cfg.HandoffTTL},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		parsed, err := parsePositiveDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s: %v", ErrConfiguration, d.key, err)
		}
		*d.dst = parsed
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := envNames[fe.StructField()]
		if name == "" {
			name = fe.StructField()
		}
		switch fe.Tag() {
		case "required", "required_if", "required_with":
			msgs = append(msgs, name+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", name, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}
