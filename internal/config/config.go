package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Policy     PolicyConfig     `yaml:"policy"`
	Image      ImageConfig      `yaml:"image"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Roster     RosterConfig     `yaml:"roster"`
	Database   DatabaseConfig   `yaml:"-"`
	Log        LogConfig        `yaml:"-"`
	Web        WebConfig        `yaml:"-"`
}

type PolicyConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	CommitConcurrency   int           `yaml:"commit_concurrency"`
	SessionIdleTimeout  time.Duration `yaml:"session_idle_timeout"`
}

type ImageConfig struct {
	MaxBytes     int64 `yaml:"max_bytes"`
	MinDimension int   `yaml:"min_dimension"`
	MaxDimension int   `yaml:"max_dimension"`
	// UploadMaxDimension downscales larger photos before they are sent to the recognizer.
	UploadMaxDimension int `yaml:"upload_max_dimension"`
}

type RecognizerConfig struct {
	URL           string        `yaml:"-"` // defaults to http://localhost:8000
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RatePerMinute int           `yaml:"rate_per_minute"`
}

type RosterConfig struct {
	Source      string        `yaml:"source"` // postgres or mariadb
	DatabaseURL string        `yaml:"-"`      // MariaDB DSN when Source is mariadb (e.g., campus:campus@tcp(mariadb:3306)/campus)
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins; localhost is always allowed
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Unlike envInt it keeps zero, a valid confidence threshold.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// defaults parses the embedded defaults file.
func defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

func Load() *Config {
	d := defaults()

	return &Config{
		Policy: PolicyConfig{
			ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", d.Policy.ConfidenceThreshold),
			CommitConcurrency:   envInt("COMMIT_CONCURRENCY", d.Policy.CommitConcurrency),
			SessionIdleTimeout:  envDuration("SESSION_IDLE_TIMEOUT", d.Policy.SessionIdleTimeout),
		},
		Image: ImageConfig{
			MaxBytes:           int64(envInt("IMAGE_MAX_BYTES", int(d.Image.MaxBytes))),
			MinDimension:       envInt("IMAGE_MIN_DIMENSION", d.Image.MinDimension),
			MaxDimension:       envInt("IMAGE_MAX_DIMENSION", d.Image.MaxDimension),
			UploadMaxDimension: envInt("IMAGE_UPLOAD_MAX_DIMENSION", d.Image.UploadMaxDimension),
		},
		Recognizer: RecognizerConfig{
			URL:           os.Getenv("RECOGNIZER_URL"),
			Timeout:       envDuration("RECOGNIZER_TIMEOUT", d.Recognizer.Timeout),
			MaxConcurrent: envInt("RECOGNIZER_MAX_CONCURRENT", d.Recognizer.MaxConcurrent),
			RatePerMinute: envInt("RECOGNIZER_RATE_PER_MINUTE", d.Recognizer.RatePerMinute),
		},
		Roster: RosterConfig{
			Source:      strings.ToLower(envString("ROSTER_SOURCE", d.Roster.Source)),
			DatabaseURL: os.Getenv("ROSTER_DATABASE_URL"),
			CacheTTL:    envDuration("ROSTER_CACHE_TTL", d.Roster.CacheTTL),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// Validate checks values that would make the service misbehave rather than fail loudly.
func (c *Config) Validate() error {
	var errs []error
	if t := c.Policy.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1], got %v", t))
	}
	if c.Policy.CommitConcurrency <= 0 {
		errs = append(errs, errors.New("COMMIT_CONCURRENCY must be positive"))
	}
	if c.Image.MinDimension > c.Image.MaxDimension {
		errs = append(errs, fmt.Errorf("IMAGE_MIN_DIMENSION (%d) exceeds IMAGE_MAX_DIMENSION (%d)", c.Image.MinDimension, c.Image.MaxDimension))
	}
	switch c.Roster.Source {
	case "postgres":
	case "mariadb":
		if c.Roster.DatabaseURL == "" {
			errs = append(errs, errors.New("ROSTER_DATABASE_URL is required when ROSTER_SOURCE=mariadb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROSTER_SOURCE %q", c.Roster.Source))
	}
	return errors.Join(errs...)
}
