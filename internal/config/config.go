// Package config loads runtime settings for the recipe API.
//
// Settings are layered, later layers winning:
//  1. defaults from defaultConfig()
//  2. an optional YAML file (CONFIG_PATH, else ./config.yaml or ./config.yml)
//  3. environment variables such as PORT or DB_DSN (see envMappings)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Supported values for Database.Driver and Storage.Backend.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StorageLocal = "local"
	StorageS3    = "s3"
)

// MinJWTSecretLength is the shortest HMAC key accepted from configuration.
const MinJWTSecretLength = 32

// ConfigPathEnvVar names the variable pointing at a YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	GitHub   GitHubConfig   `koanf:"github"`
	Storage  StorageConfig  `koanf:"storage"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite or postgres
	DSN    string `koanf:"dsn"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
	// RateLimit requests per RateWindow per client IP on POST /user/token.
	// Zero disables throttling.
	RateLimit  int           `koanf:"rate_limit"`
	RateWindow time.Duration `koanf:"rate_window"`
}

// GitHubConfig enables GitHub sign-in when ClientID is set.
type GitHubConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	CallbackURL  string `koanf:"callback_url"`
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != ""
}

type StorageConfig struct {
	Backend  string   `koanf:"backend"`   // local or s3
	MediaDir string   `koanf:"media_dir"` // local backend root
	MediaURL string   `koanf:"media_url"` // URL prefix for locally stored files
	S3       S3Config `koanf:"s3"`
}

type S3Config struct {
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Prefix    string `koanf:"prefix"`
	PublicURL string `koanf:"public_url"` // base URL for image links, defaults to the bucket's virtual-host URL
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{},
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "data/recipes.db",
		},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			RateLimit:  10,
			RateWindow: time.Minute,
		},
		Storage: StorageConfig{
			Backend:  StorageLocal,
			MediaDir: "data/media",
			MediaURL: "/media/",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envMappings maps flat environment variable names (lower-cased) to koanf
// paths. Variables not listed here are ignored.
var envMappings = map[string]string{
	"port":                 "server.port",
	"shutdown_timeout":     "server.shutdown_timeout",
	"cors_origins":         "server.cors_origins",
	"db_driver":            "database.driver",
	"db_dsn":               "database.dsn",
	"jwt_secret":           "auth.jwt_secret",
	"token_ttl":            "auth.token_ttl",
	"token_rate_limit":     "auth.rate_limit",
	"token_rate_window":    "auth.rate_window",
	"github_client_id":     "github.client_id",
	"github_client_secret": "github.client_secret",
	"github_callback_url":  "github.callback_url",
	"storage_backend":      "storage.backend",
	"media_dir":            "storage.media_dir",
	"media_url":            "storage.media_url",
	"s3_bucket":            "storage.s3.bucket",
	"s3_region":            "storage.s3.region",
	"s3_prefix":            "storage.s3.prefix",
	"s3_public_url":        "storage.s3.public_url",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// sliceConfigPaths are parsed from comma-separated strings when they come
// from the environment.
var sliceConfigPaths = []string{"server.cors_origins"}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue // unset, or already a list from YAML
		}
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: must be %q or %q", c.Database.Driver, DriverSQLite, DriverPostgres))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	// An empty secret is allowed: the server generates an ephemeral one.
	if s := c.Auth.JWTSecret; s != "" && len(s) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.RateLimit < 0 {
		errs = append(errs, errors.New("auth.rate_limit must not be negative"))
	}
	if c.Auth.RateLimit > 0 && c.Auth.RateWindow <= 0 {
		errs = append(errs, errors.New("auth.rate_window must be positive when rate_limit is set"))
	}

	if c.GitHub.Enabled() && c.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("github.client_secret is required when github.client_id is set"))
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.MediaDir == "" {
			errs = append(errs, errors.New("storage.media_dir is required for the local backend"))
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: must be %q or %q", c.Storage.Backend, StorageLocal, StorageS3))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: must be text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}
