package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client and the dev backend
type Config struct {
	// Backend API
	API APIConfig

	// Session persistence
	Store StoreConfig

	// Local access-token expiry checks
	Watchdog WatchdogConfig

	// Logging Configuration
	Logging LoggingConfig

	// Local development backend
	DevServer DevServerConfig
}

// APIConfig holds backend connection settings
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StoreConfig selects and locates the session store backend
type StoreConfig struct {
	Kind string // file, keyring, sqlite, memory
	Path string // file and sqlite only; empty means the per-user default
}

// WatchdogConfig holds the cron schedule for expiry checks
type WatchdogConfig struct {
	Schedule string // e.g. "@every 30s"; empty disables the watchdog
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// DevServerConfig holds settings for cmd/devserver
type DevServerConfig struct {
	Addr      string
	Database  string
	JWTSecret string // generated at startup when empty
	AccessTTL time.Duration
	Username  string
	Password  string
	Name      string
	Email     string
}

const (
	defaultAPIURL      = "http://localhost:8000"
	defaultTimeout     = 30 * time.Second
	defaultStoreKind   = "file"
	defaultExpiryCheck = "@every 30s"
	defaultAccessTTL   = 15 * time.Minute
)

// Load loads configuration from .env files, the user config file and
// environment variables. Environment variables win over the user file.
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	file, err := LoadUserFile()
	if err != nil {
		return nil, err
	}

	return build(file, os.Getenv)
}

func build(file *UserFile, getenv func(string) string) (*Config, error) {
	if file == nil {
		file = &UserFile{}
	}

	lookup := func(envVar, fileValue, defaultValue string) string {
		if v := strings.TrimSpace(getenv(envVar)); v != "" {
			return v
		}
		if fileValue != "" {
			return fileValue
		}
		return defaultValue
	}

	timeout, err := parseDuration("JOBCARD_HTTP_TIMEOUT", lookup("JOBCARD_HTTP_TIMEOUT", file.HTTPTimeout, ""), defaultTimeout)
	if err != nil {
		return nil, err
	}

	accessTTL, err := parseDuration("DEVSERVER_ACCESS_TTL", getenv("DEVSERVER_ACCESS_TTL"), defaultAccessTTL)
	if err != nil {
		return nil, err
	}

	return &Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(lookup("JOBCARD_API_URL", file.APIURL, defaultAPIURL), "/"),
			Timeout: timeout,
		},
		Store: StoreConfig{
			Kind: strings.ToLower(lookup("JOBCARD_STORE", file.Store, defaultStoreKind)),
			Path: lookup("JOBCARD_STORE_PATH", file.StorePath, ""),
		},
		Watchdog: WatchdogConfig{
			Schedule: lookup("JOBCARD_EXPIRY_CHECK", file.ExpiryCheck, defaultExpiryCheck),
		},
		Logging: LoggingConfig{
			Level:  lookup("LOG_LEVEL", file.LogLevel, "info"),
			Format: lookup("LOG_FORMAT", "", "console"),
		},
		DevServer: DevServerConfig{
			Addr:      lookup("DEVSERVER_ADDR", "", ":8000"),
			Database:  lookup("DEVSERVER_DATABASE", "", "jobcard-dev.sqlite"),
			JWTSecret: getenv("DEVSERVER_JWT_SECRET"),
			AccessTTL: accessTTL,
			Username:  lookup("DEVSERVER_USERNAME", "", "admin"),
			Password:  lookup("DEVSERVER_PASSWORD", "", "admin123"),
			Name:      lookup("DEVSERVER_NAME", "", "Workshop Admin"),
			Email:     lookup("DEVSERVER_EMAIL", "", "admin@example.com"),
		},
	}, nil
}

func parseDuration(name, value string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}
