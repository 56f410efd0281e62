package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Backends accepted by store.backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Matching   MatchingConfig   `yaml:"matching"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Index      IndexConfig      `yaml:"index"`
	Database   DatabaseConfig   `yaml:"database"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend"`   // file or postgres
	Root      string `yaml:"root"`      // root directory of the file backend
	Extension string `yaml:"extension"` // reference file extension (gob or json)
}

type MatchingConfig struct {
	Threshold          float64 `yaml:"threshold"`           // maximum accepted distance (exclusive)
	EmbeddingDimension int     `yaml:"embedding_dimension"` // 0 takes the first stored length
	TopK               int     `yaml:"top_k"`               // suggestions offered for unknown faces
}

type EnrollmentConfig struct {
	Enabled bool    `yaml:"enabled"`
	DLow    float64 `yaml:"d_low"`  // below: near-duplicate, skipped
	DHigh   float64 `yaml:"d_high"` // at or above: too different, rejected
}

type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // optional, if empty the index is rebuilt on startup
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Addr returns the listen address.
func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

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

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from the embedded defaults, the optional
// YAML file named by FACEAUTH_CONFIG, and environment variables, in that
// order of increasing precedence.
func Load() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	if path := os.Getenv("FACEAUTH_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Store.Backend = envString("STORE_BACKEND", c.Store.Backend)
	c.Store.Root = envString("EMBEDDINGS_DIR", c.Store.Root)
	c.Store.Extension = envString("EMBEDDINGS_EXT", c.Store.Extension)

	c.Matching.Threshold = envFloat("MATCH_THRESHOLD", c.Matching.Threshold)
	c.Matching.EmbeddingDimension = envInt("EMBEDDING_DIM", c.Matching.EmbeddingDimension)
	c.Matching.TopK = envInt("SUGGESTION_TOP_K", c.Matching.TopK)

	c.Enrollment.Enabled = envBool("ENROLL_ENABLED", c.Enrollment.Enabled)
	c.Enrollment.DLow = envFloat("ENROLL_D_LOW", c.Enrollment.DLow)
	c.Enrollment.DHigh = envFloat("ENROLL_D_HIGH", c.Enrollment.DHigh)

	c.Index.Enabled = envBool("HNSW_ENABLED", c.Index.Enabled)
	c.Index.Path = envString("HNSW_INDEX_PATH", c.Index.Path)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		c.Web.AllowedOrigins = nil
		for o := range strings.SplitSeq(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Web.AllowedOrigins = append(c.Web.AllowedOrigins, o)
			}
		}
	}

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Matching.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("matching.threshold must be positive, got %v", c.Matching.Threshold))
	}
	if c.Matching.EmbeddingDimension < 0 {
		errs = append(errs, fmt.Errorf("matching.embedding_dimension must not be negative, got %d", c.Matching.EmbeddingDimension))
	}
	if c.Matching.TopK < 1 {
		errs = append(errs, fmt.Errorf("matching.top_k must be at least 1, got %d", c.Matching.TopK))
	}
	if c.Enrollment.DLow < 0 {
		errs = append(errs, fmt.Errorf("enrollment.d_low must not be negative, got %v", c.Enrollment.DLow))
	}
	if c.Enrollment.DLow >= c.Enrollment.DHigh {
		errs = append(errs, fmt.Errorf("enrollment.d_low (%v) must be below enrollment.d_high (%v)",
			c.Enrollment.DLow, c.Enrollment.DHigh))
	}
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Root == "" {
			errs = append(errs, errors.New("store.root is required for the file backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}
