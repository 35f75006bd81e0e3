// Package config provides centralized configuration management for the roster service.
// Settings come from environment variables (optionally seeded from a .env file by
// the caller) with defaults, and are validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Store driver names accepted by STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 3000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"3000"`

	// ReadTimeout is the maximum duration for reading the request, body included (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing the response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Driver is one of mongo, postgres, memory (default: mongo)
	Driver string `env:"STORE_DRIVER" default:"mongo"`

	// MongoURI is the MongoDB connection string (used when Driver is mongo)
	MongoURI string `env:"MONGO_URI" envAlt:"DB_URI" default:"mongodb://localhost:27017"`

	// MongoDatabase is the database holding the records collection
	MongoDatabase string `env:"MONGO_DATABASE" envAlt:"DB_NAME" default:"roster"`

	// Collection is the collection (or table) name for records
	Collection string `env:"STORE_COLLECTION" envAlt:"DB_COLLECTION" default:"employees"`

	// PostgresURL is the PostgreSQL connection string (used when Driver is postgres)
	PostgresURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum pool size for either backend (default: 20)
	MaxConns int `env:"STORE_MAX_CONNS" default:"20"`

	// MinConns is the number of idle connections kept open (default: 2)
	MinConns int `env:"STORE_MIN_CONNS" default:"2"`

	// ConnectTimeout bounds the initial connect and ping (default: 10s)
	ConnectTimeout time.Duration `env:"STORE_CONNECT_TIMEOUT" default:"10s"`

	// MaxConnIdleTime closes idle pooled connections after this long (default: 30m)
	MaxConnIdleTime time.Duration `env:"STORE_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds import settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted upload in bytes (default: 32MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"33554432"`

	// MaxConcurrent is the maximum number of imports processed at once (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long an import waits for a free slot (default: 15s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"15s"`

	// TempDir is where uploads are staged before parsing (default: OS temp dir)
	TempDir string `env:"UPLOAD_TEMP_DIR"`

	// PerPage is the page size of the record table (default: 10)
	PerPage int `env:"VIEW_PER_PAGE" default:"10"`

	// MaxRowErrors caps how many row problems are reported per import (default: 20)
	MaxRowErrors int `env:"IMPORT_MAX_ROW_ERRORS" default:"20"`

	// PhoneRegion, when set (e.g. "IN", "US"), requires every mobile to be a valid
	// number for that region.
	PhoneRegion string `env:"IMPORT_PHONE_REGION"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the per-IP budget (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// RedisURL, when set, shares rate-limit counters across instances.
	RedisURL string `env:"REDIS_URL"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose X-Real-IP is honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins is a comma-separated list of allowed cross-origin callers
	CORSOrigins []string `env:"CORS_ORIGINS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
