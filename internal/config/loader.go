package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Load reads Config from the environment, fills defaults and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := decodeEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envSource is where one field's value comes from, parsed from its struct
// tags: env names the variable, envAlt a fallback variable, default the value
// used when neither is set, and required="true" forbids the default.
type envSource struct {
	names    []string
	fallback string
	required bool
}

func sourceOf(f reflect.StructField) (envSource, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envSource{}, false
	}
	src := envSource{
		names:    []string{name},
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		src.names = append(src.names, alt)
	}
	return src, true
}

// lookup returns the first non-empty variable, else the default. ok is false
// only for a required field nobody set.
func (s envSource) lookup() (value string, ok bool) {
	for _, name := range s.names {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	if s.required {
		return "", false
	}
	return s.fallback, true
}

// decodeEnv fills every tagged field of v, descending into section structs.
// All bad or missing variables are reported together.
func decodeEnv(v reflect.Value) error {
	var errs []error
	for i := range v.NumField() {
		field, fv := v.Type().Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if fv.Kind() == reflect.Struct {
			errs = append(errs, decodeEnv(fv))
			continue
		}

		src, tagged := sourceOf(field)
		if !tagged {
			continue
		}
		raw, ok := src.lookup()
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s is required", src.names[0]))
		case raw == "":
		default:
			if err := assign(fv, raw); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", src.names[0], raw, err))
			}
		}
	}
	return errors.Join(errs...)
}

var durationType = reflect.TypeFor[time.Duration]()

// assign parses raw into fv according to the field's type.
func assign(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return errors.New("not a duration (use e.g. 30s, 5m)")
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return errors.New("not an integer")
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.New("not a boolean")
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", fv.Type())
		}
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

// splitList turns "a, b,,c" into [a b c].
func splitList(raw string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// problems accumulates validation failures across sections.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems
	c.Store.validate(&p)
	c.Server.validate(&p)
	c.Upload.validate(&p)
	c.Rate.validate(&p)
	c.Logging.validate(&p)

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

func (s *StoreConfig) validate(p *problems) {
	switch strings.ToLower(s.Driver) {
	case DriverMongo:
		if s.MongoURI == "" {
			p.addf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
		if s.MongoDatabase == "" {
			p.addf("MONGO_DATABASE is required when STORE_DRIVER=mongo")
		}
	case DriverPostgres:
		if s.PostgresURL == "" {
			p.addf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		p.addf("STORE_DRIVER (%q) must be one of: mongo, postgres, memory", s.Driver)
	}

	if s.Collection == "" {
		p.addf("STORE_COLLECTION must not be empty")
	}
	switch {
	case s.MaxConns <= 0:
		p.addf("STORE_MAX_CONNS must be positive")
	case s.MinConns < 0:
		p.addf("STORE_MIN_CONNS must be non-negative")
	case s.MaxConns < s.MinConns:
		p.addf("STORE_MAX_CONNS (%d) must be >= STORE_MIN_CONNS (%d)", s.MaxConns, s.MinConns)
	}
	if s.ConnectTimeout <= 0 {
		p.addf("STORE_CONNECT_TIMEOUT must be positive")
	}
}

func (s *ServerConfig) validate(p *problems) {
	if s.Port <= 0 || s.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", s.Port)
	}
	if s.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT must be non-negative")
	}
	if s.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
}

func (u *UploadConfig) validate(p *problems) {
	if u.MaxFileSize <= 0 {
		p.addf("UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if u.MaxConcurrent <= 0 {
		p.addf("UPLOAD_MAX_CONCURRENT must be positive")
	}
	if u.MaxWaitTime <= 0 {
		p.addf("UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if u.PerPage <= 0 || u.PerPage > 500 {
		p.addf("VIEW_PER_PAGE (%d) must be 1-500", u.PerPage)
	}
	if u.MaxRowErrors <= 0 {
		p.addf("IMPORT_MAX_ROW_ERRORS must be positive")
	}
	if u.PhoneRegion != "" && len(u.PhoneRegion) != 2 {
		p.addf("IMPORT_PHONE_REGION (%q) must be a two-letter region code", u.PhoneRegion)
	}
}

func (r *RateLimitConfig) validate(p *problems) {
	if r.Enabled && r.RequestsPerMinute <= 0 {
		p.addf("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

func (l *LoggingConfig) validate(p *problems) {
	if !slices.Contains(logLevels, strings.ToLower(l.Level)) {
		p.addf("LOG_LEVEL (%q) must be one of: %s", l.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(l.Format)) {
		p.addf("LOG_FORMAT (%q) must be one of: %s", l.Format, strings.Join(logFormats, ", "))
	}
}

// String renders the config for logs. Connection strings usually carry
// credentials, so only their presence is shown.
func (c *Config) String() string {
	uri := c.Store.MongoURI
	if strings.ToLower(c.Store.Driver) == DriverPostgres {
		uri = c.Store.PostgresURL
	}
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Store: {Driver: %q, URI: %s, Collection: %q, MaxConns: %d}, "+
		"Upload: {MaxFileSize: %d, MaxConcurrent: %d, PerPage: %d}, "+
		"Rate: {Enabled: %v, RequestsPerMinute: %d, Redis: %s}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Store.Driver, masked(uri), c.Store.Collection, c.Store.MaxConns,
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.PerPage,
		c.Rate.Enabled, c.Rate.RequestsPerMinute, masked(c.Rate.RedisURL),
		c.Logging.Level, c.Logging.Format,
	)
}

func masked(s string) string {
	if s == "" {
		return "[unset]"
	}
	return "[MASKED]"
}
