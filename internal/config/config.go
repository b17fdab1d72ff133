package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the risk service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Cache   CacheConfig   `yaml:"cache"`
	Query   QueryConfig   `yaml:"query"`
	Fanout  FanoutConfig  `yaml:"fanout"`
	Refresh RefreshConfig `yaml:"refresh"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP, metrics and gRPC health listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// BackendConfig configures access to the remote seismic backend.
type BackendConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	SearchPath    string        `yaml:"searchPath"`
	VolcanoesPath string        `yaml:"volcanoesPath"`
	RiskMapPath   string        `yaml:"riskMapPath"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryBase     time.Duration `yaml:"retryBase"`
}

// CacheConfig sets the per-kind freshness windows and the entry bound.
type CacheConfig struct {
	SearchTTL     time.Duration `yaml:"searchTTL"`
	IndicatorsTTL time.Duration `yaml:"indicatorsTTL"`
	EventsTTL     time.Duration `yaml:"eventsTTL"`
	RiskMapTTL    time.Duration `yaml:"riskMapTTL"`
	CatalogTTL    time.Duration `yaml:"catalogTTL"`
	MaxEntries    int           `yaml:"maxEntries"`
}

// QueryConfig bounds the selectable time window and seeds the slider defaults.
type QueryConfig struct {
	MaxSpanDays     int     `yaml:"maxSpanDays"`
	DefaultSpanDays int     `yaml:"defaultSpanDays"`
	RadiusKm        float64 `yaml:"radiusKm"`
	MinMag          float64 `yaml:"minMag"`
}

// FanoutConfig controls the risk-map build.
type FanoutConfig struct {
	Mode        string        `yaml:"mode"`
	Concurrency int           `yaml:"concurrency"`
	CallTimeout time.Duration `yaml:"callTimeout"`
	Days        int           `yaml:"days"`
	RadiusKm    float64       `yaml:"radiusKm"`
	MinMag      float64       `yaml:"minMag"`
	Limit       int           `yaml:"limit"`
}

// RefreshConfig controls the background refresh of watched entities and the map.
type RefreshConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	Watch          []string      `yaml:"watch"`
	Map            bool          `yaml:"map"`
	UnhealthyAfter int           `yaml:"unhealthyAfter"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOLCANO_RISK_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GRPCAddress:     ":50051",
			GracefulTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000",
			SearchPath:    "/volcanoes/search",
			VolcanoesPath: "/volcanoes",
			RiskMapPath:   "/risk-map",
			Timeout:       20 * time.Second,
			MaxRetries:    2,
			RetryBase:     200 * time.Millisecond,
		},
		Cache: CacheConfig{
			SearchTTL:     5 * time.Minute,
			IndicatorsTTL: 2 * time.Minute,
			EventsTTL:     2 * time.Minute,
			RiskMapTTL:    2 * time.Minute,
			CatalogTTL:    10 * time.Minute,
			MaxEntries:    4096,
		},
		Query: QueryConfig{
			MaxSpanDays:     1825,
			DefaultSpanDays: 365,
			RadiusKm:        25,
			MinMag:          0,
		},
		Fanout: FanoutConfig{
			Mode:        "client",
			Concurrency: 6,
			CallTimeout: 15 * time.Second,
			Days:        30,
			RadiusKm:    25,
			MinMag:      0,
			Limit:       300,
		},
		Refresh: RefreshConfig{
			Enabled:        false,
			Interval:       5 * time.Minute,
			Map:            true,
			UnhealthyAfter: 3,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		errs = append(errs, errors.New("backend.baseURL is required"))
	}
	if c.Backend.MaxRetries < 0 {
		errs = append(errs, errors.New("backend.maxRetries must be >= 0"))
	}
	if c.Query.MaxSpanDays < 1 {
		errs = append(errs, errors.New("query.maxSpanDays must be >= 1"))
	}
	if c.Query.DefaultSpanDays < 1 || c.Query.DefaultSpanDays > c.Query.MaxSpanDays {
		errs = append(errs, fmt.Errorf("query.defaultSpanDays must be within 1..%d", c.Query.MaxSpanDays))
	}
	if c.Query.RadiusKm <= 0 {
		errs = append(errs, errors.New("query.radiusKm must be > 0"))
	}
	switch strings.ToLower(c.Fanout.Mode) {
	case "client", "remote":
	default:
		errs = append(errs, fmt.Errorf("fanout.mode %q must be client or remote", c.Fanout.Mode))
	}
	if c.Fanout.Concurrency < 1 || c.Fanout.Concurrency > 20 {
		errs = append(errs, errors.New("fanout.concurrency must be within 1..20"))
	}
	if c.Fanout.CallTimeout <= 0 {
		errs = append(errs, errors.New("fanout.callTimeout must be > 0"))
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		errs = append(errs, errors.New("refresh.interval must be > 0 when refresh is enabled"))
	}
	for name, ttl := range map[string]time.Duration{
		"searchTTL":     c.Cache.SearchTTL,
		"indicatorsTTL": c.Cache.IndicatorsTTL,
		"eventsTTL":     c.Cache.EventsTTL,
		"riskMapTTL":    c.Cache.RiskMapTTL,
		"catalogTTL":    c.Cache.CatalogTTL,
	} {
		if ttl < 0 {
			errs = append(errs, fmt.Errorf("cache.%s must be >= 0", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOLCANO_RISK_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("VOLCANO_RISK_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("VOLCANO_RISK_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("VOLCANO_RISK_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("VOLCANO_RISK_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("VOLCANO_RISK_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("VOLCANO_RISK_BACKEND_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.MaxRetries = n
		}
	}
	if v := os.Getenv("VOLCANO_RISK_CACHE_INDICATORS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.IndicatorsTTL = d
		}
	}
	if v := os.Getenv("VOLCANO_RISK_CACHE_SEARCH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SearchTTL = d
		}
	}
	if v := os.Getenv("VOLCANO_RISK_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("VOLCANO_RISK_FANOUT_MODE"); v != "" {
		cfg.Fanout.Mode = v
	}
	if v := os.Getenv("VOLCANO_RISK_FANOUT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fanout.Concurrency = n
		}
	}
	if v := os.Getenv("VOLCANO_RISK_FANOUT_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fanout.CallTimeout = d
		}
	}
	if v := os.Getenv("VOLCANO_RISK_REFRESH_ENABLED"); v != "" {
		cfg.Refresh.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("VOLCANO_RISK_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Interval = d
		}
	}
	if v := os.Getenv("VOLCANO_RISK_REFRESH_WATCH"); v != "" {
		cfg.Refresh.Watch = splitList(v)
	}
	if v := os.Getenv("VOLCANO_RISK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VOLCANO_RISK_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
