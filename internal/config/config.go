package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/athenakit/athenakit/internal/storage"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendAWS   = "aws"
	BackendMinIO = "minio"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Athena        AthenaConfig
	Fetch         FetchConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type AthenaConfig struct {
	Region         string
	Workgroup      string
	Database       string
	OutputLocation storage.Location
	PollInterval   time.Duration
	ResultFormat   string
	TablePrefix    string
	PageSize       int
	DateFields     []string
}

type FetchConfig struct {
	Concurrency int
	Gzipped     bool
}

type ObjectStoreConfig struct {
	Backend         string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	UsePathStyle    bool
}

type ObservabilityConfig struct {
	LogLevel    slog.Level
	LogJSON     bool
	MetricsAddr string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ATHENAKIT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ATHENAKIT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	outputLocation := cfg.Athena.OutputLocation.String()
	dateFields := strings.Join(cfg.Athena.DateFields, ",")

	appliers := []func() error{
		func() error { return applyString(lookup, "ATHENAKIT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ATHENAKIT_ATHENA_REGION", &cfg.Athena.Region) },
		func() error { return applyString(lookup, "ATHENAKIT_ATHENA_WORKGROUP", &cfg.Athena.Workgroup) },
		func() error { return applyString(lookup, "ATHENAKIT_ATHENA_DATABASE", &cfg.Athena.Database) },
		func() error { return applyString(lookup, "ATHENAKIT_ATHENA_OUTPUT_LOCATION", &outputLocation) },
		func() error { return applyDuration(lookup, "ATHENAKIT_ATHENA_POLL_INTERVAL", &cfg.Athena.PollInterval) },
		func() error { return applyString(lookup, "ATHENAKIT_ATHENA_RESULT_FORMAT", &cfg.Athena.ResultFormat) },
		func() error { return applyString(lookup, "ATHENAKIT_ATHENA_TABLE_PREFIX", &cfg.Athena.TablePrefix) },
		func() error { return applyInt(lookup, "ATHENAKIT_ATHENA_PAGE_SIZE", &cfg.Athena.PageSize) },
		func() error { return applyString(lookup, "ATHENAKIT_DATE_FIELDS", &dateFields) },
		func() error { return applyInt(lookup, "ATHENAKIT_FETCH_CONCURRENCY", &cfg.Fetch.Concurrency) },
		func() error { return applyBool(lookup, "ATHENAKIT_FETCH_GZIP", &cfg.Fetch.Gzipped) },
		func() error { return applyString(lookup, "ATHENAKIT_OBJECTSTORE_BACKEND", &cfg.ObjectStore.Backend) },
		func() error { return applyString(lookup, "ATHENAKIT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ATHENAKIT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ATHENAKIT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ATHENAKIT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ATHENAKIT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyBool(lookup, "ATHENAKIT_OBJECTSTORE_PATH_STYLE", &cfg.ObjectStore.UsePathStyle) },
		func() error { return applyBool(lookup, "ATHENAKIT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ATHENAKIT_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyString(lookup, "ATHENAKIT_METRICS_ADDR", &cfg.Observability.MetricsAddr) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	location, err := storage.ParseLocation(outputLocation)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ATHENAKIT_ATHENA_OUTPUT_LOCATION: %w", err)
	}
	cfg.Athena.OutputLocation = location
	cfg.Athena.DateFields = splitList(dateFields)
	cfg.Athena.ResultFormat = strings.ToUpper(cfg.Athena.ResultFormat)
	cfg.ObjectStore.Backend = strings.ToLower(cfg.ObjectStore.Backend)
	if cfg.Athena.Database == "" {
		cfg.Athena.Database = cfg.Athena.Workgroup
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.Athena.Workgroup == "" {
		return Config{}, fmt.Errorf("athena workgroup is required")
	}
	if cfg.Athena.PollInterval <= 0 {
		return Config{}, fmt.Errorf("athena poll interval must be positive")
	}
	if cfg.Athena.PageSize < 1 || cfg.Athena.PageSize > 1000 {
		return Config{}, fmt.Errorf("invalid ATHENAKIT_ATHENA_PAGE_SIZE: %d", cfg.Athena.PageSize)
	}
	switch cfg.Athena.ResultFormat {
	case "ORC", "PARQUET":
	default:
		return Config{}, fmt.Errorf("invalid ATHENAKIT_ATHENA_RESULT_FORMAT: %q", cfg.Athena.ResultFormat)
	}
	if cfg.Fetch.Concurrency == 0 || cfg.Fetch.Concurrency < -1 {
		return Config{}, fmt.Errorf("invalid ATHENAKIT_FETCH_CONCURRENCY: %d", cfg.Fetch.Concurrency)
	}
	switch cfg.ObjectStore.Backend {
	case BackendAWS:
	case BackendMinIO:
		if cfg.ObjectStore.Endpoint == "" {
			return Config{}, fmt.Errorf("minio backend requires ATHENAKIT_OBJECTSTORE_ENDPOINT")
		}
	default:
		return Config{}, fmt.Errorf("invalid ATHENAKIT_OBJECTSTORE_BACKEND: %q", cfg.ObjectStore.Backend)
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "athenactl"},
		Athena: AthenaConfig{
			Region:         "us-east-1",
			Workgroup:      "primary",
			OutputLocation: storage.Location{Scheme: storage.SchemeS3, Bucket: "athenakit-results"},
			PollInterval:   5 * time.Second,
			ResultFormat:   "ORC",
			TablePrefix:    "tmp_",
			PageSize:       1000,
			DateFields:     []string{"date", "event_date", "report_date"},
		},
		Fetch: FetchConfig{
			Concurrency: 1,
			Gzipped:     false,
		},
		ObjectStore: ObjectStoreConfig{
			Backend: BackendAWS,
			Region:  "us-east-1",
			UseSSL:  true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Athena.PollInterval = 200 * time.Millisecond
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Fetch.Concurrency = -1
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	return applyParsed(lookup, key, dst, time.ParseDuration)
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	return applyParsed(lookup, key, dst, strconv.ParseBool)
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	return applyParsed(lookup, key, dst, strconv.Atoi)
}

func applyParsed[T any](lookup LookupFunc, key string, dst *T, parse func(string) (T, error)) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
