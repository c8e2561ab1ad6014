// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	HL7Source SourceConfig `envPrefix:"HL7_"`
	CSVSource SourceConfig `envPrefix:"CSV_"`
	Import    ImportConfig
	Security  SecurityConfig
	Rate      RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the result store backend: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, or the SQLite file path (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// SourceConfig describes one remote endpoint delivering laboratory files.
// The same struct is loaded twice, once per source, with HL7_ and CSV_ prefixes.
type SourceConfig struct {
	// Enabled registers the daily trigger for this source (default: true)
	Enabled bool `env:"ENABLED" default:"true"`

	// Driver is the transfer protocol: sftp, s3 or fs (default: sftp)
	Driver string `env:"DRIVER" default:"sftp"`

	Host     string `env:"HOST"`
	Port     int    `env:"PORT" default:"22"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`

	// Directory is the fixed upload directory (sftp, fs) or key prefix (s3) (default: upload)
	Directory string `env:"DIRECTORY" default:"upload"`

	// KnownHosts is an OpenSSH known_hosts file used to verify the sftp host key.
	// When empty the host key is not verified.
	KnownHosts string `env:"KNOWN_HOSTS"`

	// Bucket, Region and Endpoint configure the s3 driver. Username and Password
	// are used as access key id and secret.
	Bucket   string `env:"BUCKET"`
	Region   string `env:"REGION" default:"eu-central-1"`
	Endpoint string `env:"ENDPOINT"`

	// Schedule is the daily trigger time as HH:MM in IMPORT_TIMEZONE.
	// Defaults to 03:00 for HL7 and 04:00 for CSV.
	Schedule string `env:"SCHEDULE"`
}

// ImportConfig holds pipeline settings shared by both sources.
type ImportConfig struct {
	// MaxFileSize is the largest remote file read into memory (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// InFlight is how many files may be inside the pipeline at once (default: 1)
	InFlight int `env:"IMPORT_IN_FLIGHT" default:"1"`

	// RunWait is how long an overlapping run waits for the running one (default: 5m)
	RunWait time.Duration `env:"IMPORT_RUN_WAIT" default:"5m"`

	// RunTimeout bounds a single run (default: 1h)
	RunTimeout time.Duration `env:"IMPORT_RUN_TIMEOUT" default:"1h"`

	// Timezone is the IANA zone the schedules are interpreted in (default: Local)
	Timezone string `env:"IMPORT_TIMEZONE" default:"Local"`

	// DeleteImported removes successfully imported files from the source (default: true)
	DeleteImported bool `env:"IMPORT_DELETE_IMPORTED" default:"true"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey gates the manual import endpoints (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// RateLimitConfig limits manual import triggers per client IP.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// ImportsPerMinute is how many manual triggers one IP may send per minute (default: 6)
	ImportsPerMinute int `env:"RATE_LIMIT_IMPORTS_PER_MINUTE" default:"6"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Default schedules, staggered so both sources do not compete for the pool.
const (
	DefaultHL7Schedule = "03:00"
	DefaultCSVSchedule = "04:00"
)

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Location resolves the configured timezone.
func (c *ImportConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
