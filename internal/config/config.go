package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the RecipeBox server.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Import   ImportConfig
	Analysis AnalysisConfig
	Auth     AuthConfig
	Images   ImageConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	BaseURL            string
	CORSAllowedOrigins []string
	WebDistDir         string
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ImportConfig struct {
	QueueSize int
	Retention time.Duration
}

type AnalysisConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	Spacing   time.Duration
}

type AuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	SessionSecret      string
	SessionTTL         time.Duration
	AdminEmail         string
}

type ImageConfig struct {
	Store     string
	UploadDir string
	MaxBytes  int64
	S3        S3Config
}

type S3Config struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string
}

// IsProduction reports whether the server runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LoadEnvFiles loads KEY=value pairs from dotenv files into the process
// environment without overriding variables that are already set.
// Missing files are skipped; with no arguments ".env" is tried.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("RECIPEBOX_PORT", 4000),
			Env:                envString("RECIPEBOX_ENV", "development"),
			BaseURL:            strings.TrimRight(envString("BASE_URL", "http://localhost:4000"), "/"),
			CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:4000"}),
			WebDistDir:         os.Getenv("WEB_DIST_DIR"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: os.Getenv("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			BaseURL: strings.TrimRight(envString("AI_SERVICE_URL", "http://localhost:8001"), "/"),
			Timeout: envDuration("AI_REQUEST_TIMEOUT", 120*time.Second),
		},
		Import: ImportConfig{
			QueueSize: envInt("IMPORT_QUEUE_SIZE", 100),
			Retention: envDuration("IMPORT_RETENTION", 7*24*time.Hour),
		},
		Analysis: AnalysisConfig{
			Enabled:   envBool("ANALYSIS_ENABLED", true),
			Interval:  envDuration("ANALYSIS_INTERVAL", 5*time.Minute),
			BatchSize: envInt("ANALYSIS_BATCH_SIZE", 5),
			Spacing:   envDuration("ANALYSIS_SPACING", 2*time.Second),
		},
		Auth: AuthConfig{
			GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			SessionSecret:      os.Getenv("SESSION_SECRET"),
			SessionTTL:         envDuration("SESSION_TTL", 7*24*time.Hour),
			AdminEmail:         strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		},
		Images: ImageConfig{
			Store:     envString("IMAGE_STORE", "local"),
			UploadDir: envString("UPLOAD_DIR", "uploads"),
			MaxBytes:  int64(envInt("UPLOAD_MAX_BYTES", 5*1024*1024)),
			S3: S3Config{
				Bucket:   os.Getenv("S3_BUCKET"),
				Region:   os.Getenv("S3_REGION"),
				Prefix:   os.Getenv("S3_PREFIX"),
				Endpoint: os.Getenv("S3_ENDPOINT"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.AI.BaseURL, "http://") && !strings.HasPrefix(c.AI.BaseURL, "https://") {
		return fmt.Errorf("AI_SERVICE_URL must start with http:// or https://, got %q", c.AI.BaseURL)
	}

	if c.Import.QueueSize < 1 {
		return fmt.Errorf("IMPORT_QUEUE_SIZE must be at least 1, got %d", c.Import.QueueSize)
	}
	if c.Import.Retention <= 0 {
		return fmt.Errorf("IMPORT_RETENTION must be positive, got %s", c.Import.Retention)
	}

	if c.Analysis.Interval <= 0 {
		return fmt.Errorf("ANALYSIS_INTERVAL must be positive, got %s", c.Analysis.Interval)
	}
	if c.Analysis.BatchSize < 1 {
		return fmt.Errorf("ANALYSIS_BATCH_SIZE must be at least 1, got %d", c.Analysis.BatchSize)
	}
	if c.Analysis.Spacing < 0 {
		return fmt.Errorf("ANALYSIS_SPACING must not be negative, got %s", c.Analysis.Spacing)
	}

	if c.IsProduction() {
		if len(c.Auth.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET of at least 32 bytes is required in production")
		}
		if c.Auth.GoogleClientID == "" || c.Auth.GoogleClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required in production")
		}
	}

	switch c.Images.Store {
	case "local":
		if c.Images.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required when IMAGE_STORE is local")
		}
	case "s3":
		if c.Images.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when IMAGE_STORE is s3")
		}
	default:
		return fmt.Errorf("IMAGE_STORE must be one of local, s3; got %q", c.Images.Store)
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of json, console; got %q", c.Log.Format)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
