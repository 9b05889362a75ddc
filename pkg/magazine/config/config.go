// Package config reads the portal configuration from the environment and
// builds a magazine.Service from it.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// Database kinds selected by DATABASE_URL.
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseMongo    = "mongo"
)

// Storage kinds selected by STORAGE_URL.
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
	StorageGridFS = "gridfs"
)

// Config is the complete runtime configuration.
type Config struct {
	Port             string        `yaml:"port" toml:"port" env:"PORT" env-default:"5000"`
	Environment      string        `yaml:"environment" toml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel         string        `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	SecretKey        string        `yaml:"secret_key" toml:"secret_key" env:"SECRET_KEY"`
	SessionTTL       time.Duration `yaml:"session_ttl" toml:"session_ttl" env:"SESSION_TTL" env-default:"24h"`
	RequestTimeout   time.Duration `yaml:"request_timeout" toml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"30s"`
	MaxContentLength int64         `yaml:"max_content_length" toml:"max_content_length" env:"MAX_CONTENT_LENGTH" env-default:"16777216"`
	PasswordCost     int           `yaml:"bcrypt_cost" toml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`

	DatabaseURL  string `yaml:"database_url" toml:"database_url" env:"DATABASE_URL" env-default:"memory"`
	DatabaseName string `yaml:"database_name" toml:"database_name" env:"DATABASE_NAME" env-default:"college_magazine"`
	StorageURL   string `yaml:"storage_url" toml:"storage_url" env:"STORAGE_URL" env-default:"memory://"`

	S3    S3Config    `yaml:"s3" toml:"s3"`
	Admin AdminConfig `yaml:"admin" toml:"admin"`
}

// S3Config holds the settings for s3:// storage.
type S3Config struct {
	Endpoint        string `yaml:"endpoint" toml:"endpoint" env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `yaml:"region" toml:"region" env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `yaml:"use_path_style" toml:"use_path_style" env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `yaml:"create_bucket" toml:"create_bucket" env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
	EnableSSE       bool   `yaml:"enable_sse" toml:"enable_sse" env:"AWS_S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm    string `yaml:"sse_algorithm" toml:"sse_algorithm" env:"AWS_S3_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id" toml:"sse_kms_key_id" env:"AWS_S3_SSE_KMS_KEY_ID"`
}

// AdminConfig holds the single admin login.
type AdminConfig struct {
	Username string `yaml:"username" toml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
	Password string `yaml:"password" toml:"password" env:"ADMIN_PASSWORD" env-default:"admin123"`
}

// Load reads the given .env files, when they exist, and then the process
// environment. The result is validated.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return finish(&cfg)
}

// LoadFile reads a YAML, TOML, JSON or .env file and then lets the process
// environment override it.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration from %s: %w", path, err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.SecretKey == "" && !cfg.IsProduction() {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required in production")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.MaxContentLength <= 0 {
		return errors.New("MAX_CONTENT_LENGTH must be positive")
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}

	dbKind, err := c.DatabaseKind()
	if err != nil {
		return err
	}
	storeKind, _, err := c.StorageLocation()
	if err != nil {
		return err
	}
	if storeKind == StorageGridFS && dbKind != DatabaseMongo {
		return errors.New("gridfs storage requires a mongodb DATABASE_URL")
	}
	if dbKind == DatabaseMongo && c.DatabaseName == "" {
		return errors.New("DATABASE_NAME is required for mongodb")
	}
	return nil
}

// DatabaseKind detects the record store from DATABASE_URL.
func (c *Config) DatabaseKind() (string, error) {
	u := c.DatabaseURL
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return DatabaseMemory, nil
	case strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://"):
		return DatabasePostgres, nil
	case strings.HasPrefix(u, "mongodb://") || strings.HasPrefix(u, "mongodb+srv://"):
		return DatabaseMongo, nil
	}
	return "", fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'mongodb://...')", u)
}

// StorageLocation detects the blob backend from STORAGE_URL. The location is
// the directory for fs, "bucket[/prefix]" for s3 and the bucket name for
// gridfs.
func (c *Config) StorageLocation() (kind, location string, err error) {
	raw := c.StorageURL
	if raw == "" || raw == "memory" || raw == "memory://" {
		return StorageMemory, "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = u.Host + p
		}
		if p == "" {
			return "", "", errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return StorageFS, p, nil
	case "s3":
		if u.Host == "" {
			return "", "", errors.New("bucket name cannot be empty in STORAGE_URL")
		}
		return StorageS3, u.Host + strings.TrimRight(u.Path, "/"), nil
	case "gridfs":
		return StorageGridFS, u.Host, nil
	}
	return "", "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...' or 'gridfs://...')", raw)
}

// AdminCredentials returns the configured admin login.
func (c *Config) AdminCredentials() magazine.AdminCredentials {
	return magazine.AdminCredentials{Username: c.Admin.Username, Password: c.Admin.Password}
}
