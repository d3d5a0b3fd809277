package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/regionscan/regionscan/internal/dsn"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Store         StoreConfig
	Scan          ScanConfig
	ObjectStore   ObjectStoreConfig
	Export        ExportConfig
	HTTP          HTTPConfig
	Auth          AuthConfig
	Maintenance   MaintenanceConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type StoreConfig struct {
	URL              string
	Descriptor       dsn.Descriptor
	User             string
	Password         string
	Schema           string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
}

type ScanConfig struct {
	Concurrency      int
	TargetPartitions int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ExportConfig struct {
	Prefix       string
	AllOrNothing bool
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// QueryTimeout bounds one scan, query or export request end to end.
	QueryTimeout time.Duration
	MaxRowLimit  int
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// MaintenanceConfig drives export retention. A zero RetentionInterval disables the
// background loop; the once-off commands still run.
type MaintenanceConfig struct {
	RetentionInterval time.Duration
	KeepExports       int
	SafetyAge         time.Duration
}

type ObservabilityConfig struct {
	LogLevel    slog.Level
	LogJSON     bool
	MetricsAddr string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// storeOptionKeys maps dsn.FromOptions keys to environment variables. A URL wins over
// the individual parts; the profile default URL applies when none is set.
var storeOptionKeys = map[string]string{
	"url":      "REGIONSCAN_STORE_URL",
	"protocol": "REGIONSCAN_STORE_PROTOCOL",
	"host":     "REGIONSCAN_STORE_HOST",
	"port":     "REGIONSCAN_STORE_PORT",
	"path":     "REGIONSCAN_STORE_PATH",
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("REGIONSCAN_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid REGIONSCAN_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "REGIONSCAN_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	storeOptions := make(map[string]string)
	for option, key := range storeOptionKeys {
		if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
			storeOptions[option] = raw
		}
	}
	if err := applyString(lookup, "REGIONSCAN_STORE_USER", &cfg.Store.User); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_STORE_PASSWORD", &cfg.Store.Password); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_STORE_SCHEMA", &cfg.Store.Schema); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REGIONSCAN_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REGIONSCAN_STORE_MAX_IDLE_CONNS", &cfg.Store.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_STORE_CONN_MAX_IDLE_TIME", &cfg.Store.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_STORE_CONN_MAX_LIFETIME", &cfg.Store.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_STORE_STATEMENT_TIMEOUT", &cfg.Store.StatementTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REGIONSCAN_SCAN_CONCURRENCY", &cfg.Scan.Concurrency); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REGIONSCAN_SCAN_TARGET_PARTITIONS", &cfg.Scan.TargetPartitions); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "REGIONSCAN_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "REGIONSCAN_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_EXPORT_PREFIX", &cfg.Export.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "REGIONSCAN_EXPORT_ALL_OR_NOTHING", &cfg.Export.AllOrNothing); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_HTTP_QUERY_TIMEOUT", &cfg.HTTP.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REGIONSCAN_HTTP_MAX_ROW_LIMIT", &cfg.HTTP.MaxRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "REGIONSCAN_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_MAINTENANCE_RETENTION_INTERVAL", &cfg.Maintenance.RetentionInterval); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REGIONSCAN_MAINTENANCE_KEEP_EXPORTS", &cfg.Maintenance.KeepExports); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "REGIONSCAN_MAINTENANCE_SAFETY_AGE", &cfg.Maintenance.SafetyAge); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "REGIONSCAN_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "REGIONSCAN_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "REGIONSCAN_METRICS_ADDR", &cfg.Observability.MetricsAddr); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if len(storeOptions) == 0 {
		storeOptions["url"] = cfg.Store.URL
	}
	descriptor, err := dsn.FromOptions(storeOptions)
	if err != nil {
		return Config{}, fmt.Errorf("invalid store address: %w", err)
	}
	cfg.Store.Descriptor = descriptor
	cfg.Store.URL = descriptor.String()
	if cfg.Scan.Concurrency <= 0 {
		return Config{}, fmt.Errorf("scan concurrency must be > 0")
	}
	if cfg.Scan.TargetPartitions <= 0 {
		return Config{}, fmt.Errorf("scan target partitions must be > 0")
	}
	if cfg.HTTP.MaxRowLimit <= 0 {
		return Config{}, fmt.Errorf("http max row limit must be > 0")
	}
	if cfg.Maintenance.KeepExports < 1 {
		return Config{}, fmt.Errorf("maintenance keep exports must be >= 1")
	}
	if cfg.Maintenance.RetentionInterval < 0 || cfg.Maintenance.SafetyAge < 0 {
		return Config{}, fmt.Errorf("maintenance durations must be >= 0")
	}
	if cfg.Auth.Required && strings.TrimSpace(cfg.Auth.StaticKeys) == "" {
		return Config{}, fmt.Errorf("REGIONSCAN_AUTH_STATIC_KEYS is required when auth is required")
	}
	return cfg, nil
}

// DriverParams are passed through to the store driver untouched; timeouts are the
// driver's concern.
func (c StoreConfig) DriverParams() map[string]string {
	params := map[string]string{}
	if c.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10)
	}
	return params
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "regionscan"},
		Store: StoreConfig{
			URL:             "postgres:localhost:26257:/defaultdb",
			User:            "root",
			MaxOpenConns:    32,
			MaxIdleConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Scan: ScanConfig{
			Concurrency:      8,
			TargetPartitions: 16,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "regionscan",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Export: ExportConfig{
			Prefix:       "exports",
			AllOrNothing: true,
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
			QueryTimeout: 2 * time.Minute,
			MaxRowLimit:  10000,
		},
		Maintenance: MaintenanceConfig{
			KeepExports: 3,
			SafetyAge:   30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Store.URL = "duckdb:::"
		cfg.Scan.Concurrency = 2
		cfg.Scan.TargetPartitions = 3
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.Auth.Required = true
		cfg.Maintenance.RetentionInterval = 10 * time.Minute
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

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
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
