// Package config provides configuration loading and validation for the feed
// ranking server. It uses koanf to merge an optional YAML file with
// environment variables, which take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage. Both are optional outside production: without a database the
	// server ranks an in-memory corpus, without Redis rate limits are per process.
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT authentication. An empty secret disables bearer auth (development only).
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Ranking
	CalibrationPath        string `koanf:"ranking_calibration_path"`
	DefaultPageSize        int    `koanf:"feed_default_page_size"`
	MaxPageSize            int    `koanf:"feed_max_page_size"`
	DefaultExperienceLevel int    `koanf:"default_experience_level"`
	RankParallelism        int    `koanf:"rank_parallelism"`

	RankMaxCandidates      int    `koanf:"rank_max_candidates"`

	// Requests per minute per client on /feed and /rank. 0 disables limiting.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// Browser origins allowed by CORS. Empty allows none.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"otel_exporter"`
	TracingEndpoint   string  `koanf:"otel_exporter_otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required in production")
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required in production")
	ErrInvalidPort            = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidInteger         = errors.New("must be a valid integer")
	ErrInvalidPageSize        = errors.New("page sizes must be positive and the default must not exceed the maximum")
	ErrInvalidParallelism     = errors.New("RANK_PARALLELISM must not be negative")
	ErrInvalidRateLimit       = errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	ErrInvalidMaxCandidates   = errors.New("RANK_MAX_CANDIDATES must be positive")
	ErrInvalidSampleRate      = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidTracingExporter = errors.New("OTEL_EXPORTER must be otlp-http or otlp-grpc")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultPageSize            = 50
	DefaultMaxPageSize         = 200
	DefaultUserExperienceLevel = 5
	DefaultRankParallelism     = 1
	DefaultRankMaxCandidates   = 10000
	DefaultRateLimitPerMinute  = 120
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingSampleRate   = 0.1
	DefaultCalibrationPath     = ""
	productionEnv              = "production"
)

// Load reads configuration from an optional YAML file and the environment.
// It returns the config together with every validation error found, so
// operators can fix all problems in one pass. A file that cannot be loaded is
// reported as the only error and no config is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	var loadErrs []error
	intSetting := func(envKeys []string, koanfKey string, def int) int {
		v, err := getEnvIntOrDefault(envKeys, k, koanfKey, def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	port, portErr := getEnvIntOrDefault([]string{"FEEDRANK_PORT", "PORT"}, k, "port", DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrInvalidPort, portErr))
	}

	sampleRate, rateErr := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefault([]string{"FEEDRANK_ENV", "ENV"}, k, "env", DefaultEnv),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:              getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:      getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		CalibrationPath:        getEnvOrDefault([]string{"RANKING_CALIBRATION_PATH"}, k, "ranking_calibration_path", DefaultCalibrationPath),
		DefaultPageSize:        intSetting([]string{"FEED_DEFAULT_PAGE_SIZE"}, "feed_default_page_size", DefaultPageSize),
		MaxPageSize:            intSetting([]string{"FEED_MAX_PAGE_SIZE"}, "feed_max_page_size", DefaultMaxPageSize),
		DefaultExperienceLevel: intSetting([]string{"DEFAULT_EXPERIENCE_LEVEL"}, "default_experience_level", DefaultUserExperienceLevel),
		RankParallelism:        intSetting([]string{"RANK_PARALLELISM"}, "rank_parallelism", DefaultRankParallelism),
		RankMaxCandidates:      intSetting([]string{"RANK_MAX_CANDIDATES"}, "rank_max_candidates", DefaultRankMaxCandidates),
		RateLimitPerMinute:     intSetting([]string{"RATE_LIMIT_PER_MINUTE"}, "rate_limit_per_minute", DefaultRateLimitPerMinute),
		CORSAllowedOrigins:     getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		TracingEnabled:         getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:        getEnvOrDefault([]string{"OTEL_EXPORTER"}, k, "otel_exporter", DefaultTracingExporter),
		TracingEndpoint:        getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otel_exporter_otlp_endpoint"),
		TracingSampleRate:      sampleRate,
	}

	return cfg, append(loadErrs, cfg.Validate()...)
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault tries envKeys in order, then the koanf value, then def.
func getEnvOrDefault(envKeys []string, k *koanf.Koanf, koanfKey, def string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if val := k.String(koanfKey); val != "" {
		return val
	}
	return def
}

// getEnvIntOrDefault tries envKeys in order, then the koanf value, then def.
// A set but unparsable environment variable is an error. A key present in the
// file wins over def even when it is zero.
func getEnvIntOrDefault(envKeys []string, k *koanf.Koanf, koanfKey string, def int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return def, fmt.Errorf("%s %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey), nil
	}
	return def, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value, or def.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, def float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return def, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return def, nil
}

// getEnvListOrKoanf splits a comma-separated environment variable, falling
// back to a YAML list. Blank entries are dropped.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	raw := k.Strings(koanfKey)
	if val := os.Getenv(envKey); val != "" {
		raw = strings.Split(val, ",")
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnvBoolOrKoanf accepts true/1/yes/on and false/0/no/off from the
// environment; anything else falls through to the koanf value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return k.Bool(koanfKey)
}

// IsProduction reports whether the server runs with production requirements.
func (c *Config) IsProduction() bool {
	return c.Env == productionEnv
}

// AuthEnabled reports whether bearer tokens are required.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Validate checks value ranges and production requirements.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, ErrInvalidPageSize)
	}
	if c.RankParallelism < 0 {
		errs = append(errs, ErrInvalidParallelism)
	}
	if c.RankMaxCandidates <= 0 {
		errs = append(errs, ErrInvalidMaxCandidates)
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidTracingExporter)
	}

	if c.IsProduction() {
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
		if c.JWTSecret == "" {
			errs = append(errs, ErrMissingJWTSecret)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                        strconv.Itoa(c.Port),
		"env":                         c.Env,
		"database_url":                maskURL(c.DatabaseURL),
		"redis_url":                   maskURL(c.RedisURL),
		"jwt_secret":                  maskSecret(c.JWTSecret),
		"jwt_previous_secret":         maskSecret(c.JWTPreviousSecret),
		"ranking_calibration_path":    orNotSet(c.CalibrationPath),
		"feed_default_page_size":      strconv.Itoa(c.DefaultPageSize),
		"feed_max_page_size":          strconv.Itoa(c.MaxPageSize),
		"default_experience_level":    strconv.Itoa(c.DefaultExperienceLevel),
		"rank_parallelism":            strconv.Itoa(c.RankParallelism),
		"rank_max_candidates":         strconv.Itoa(c.RankMaxCandidates),
		"rate_limit_per_minute":       strconv.Itoa(c.RateLimitPerMinute),
		"cors_allowed_origins":        orNotSet(strings.Join(c.CORSAllowedOrigins, ",")),
		"tracing_enabled":             strconv.FormatBool(c.TracingEnabled),
		"otel_exporter":               c.TracingExporter,
		"otel_exporter_otlp_endpoint": orNotSet(c.TracingEndpoint),
		"tracing_sample_rate":         strconv.FormatFloat(c.TracingSampleRate, 'g', -1, 64),
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password in a connection URL such as postgres:// or redis://.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
