package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "HUMANQA"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultAllowedOrigins = "*"
	defaultDatabaseDriver = DriverSQLite
	defaultDatabaseDSN    = "humanqa.db"
	defaultTxTimeout      = 5 * time.Second
	defaultLogLevel       = "info"
	defaultSessionIssuer  = "humanqa-auth"
	defaultCookieName     = "app_session"
	defaultTokenTTL       = 30 * time.Minute
	defaultOracleTimeout  = 8 * time.Second
	defaultOracleRetries  = 1
	defaultTimezone       = "UTC"
	defaultViewPolicy     = "proof"
	defaultRateWindow     = time.Minute
	defaultRateLimit      = 20
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabaseDSN    string
	TxTimeout      time.Duration

	LogLevel string

	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	SessionTokenTTL      time.Duration

	OracleBaseURL string
	OracleAppID   string
	OracleAPIKey  string
	OracleTimeout time.Duration
	OracleRetries int

	SignalsTimezone string
	ViewPolicy      string

	RateLimitWindow time.Duration
	RateLimitLimit  int

	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("database.tx_timeout", defaultTxTimeout)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.signing_secret", "")
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.token_ttl", defaultTokenTTL)
	configViper.SetDefault("oracle.base_url", "")
	configViper.SetDefault("oracle.app_id", "")
	configViper.SetDefault("oracle.api_key", "")
	configViper.SetDefault("oracle.timeout", defaultOracleTimeout)
	configViper.SetDefault("oracle.retries", defaultOracleRetries)
	configViper.SetDefault("signals.timezone", defaultTimezone)
	configViper.SetDefault("views.policy", defaultViewPolicy)
	configViper.SetDefault("ratelimit.window", defaultRateWindow)
	configViper.SetDefault("ratelimit.limit", defaultRateLimit)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", 0)
}

// Read parses runtime configuration from viper without validating it.
func Read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AllowedOrigins:       splitList(configViper.GetString("http.allowed_origins")),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		TxTimeout:            configViper.GetDuration("database.tx_timeout"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTokenTTL:      configViper.GetDuration("session.token_ttl"),
		OracleBaseURL:        configViper.GetString("oracle.base_url"),
		OracleAppID:          configViper.GetString("oracle.app_id"),
		OracleAPIKey:         configViper.GetString("oracle.api_key"),
		OracleTimeout:        configViper.GetDuration("oracle.timeout"),
		OracleRetries:        configViper.GetInt("oracle.retries"),
		SignalsTimezone:      configViper.GetString("signals.timezone"),
		ViewPolicy:           strings.ToLower(strings.TrimSpace(configViper.GetString("views.policy"))),
		RateLimitWindow:      configViper.GetDuration("ratelimit.window"),
		RateLimitLimit:       configViper.GetInt("ratelimit.limit"),
		RedisAddress:         strings.TrimSpace(configViper.GetString("redis.address")),
		RedisPassword:        configViper.GetString("redis.password"),
		RedisDB:              configViper.GetInt("redis.db"),
	}
}

// Load parses and fully validates the configuration required to serve the API.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := Read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Location resolves the time zone used for day-bucketed signals.
func (c AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.SignalsTimezone)
	if name == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("signals.timezone %q: %w", name, err)
	}
	return location, nil
}

// ValidateDatabase checks the keys required to open the store.
func (c AppConfig) ValidateDatabase() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("database.tx_timeout must be positive")
	}
	return nil
}

// ValidateSession checks the keys required to validate or issue sessions.
func (c AppConfig) ValidateSession() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if err := c.ValidateSession(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if strings.TrimSpace(c.OracleBaseURL) == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	if strings.TrimSpace(c.OracleAppID) == "" {
		return fmt.Errorf("oracle.app_id is required")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive")
	}
	if c.OracleRetries < 0 {
		return fmt.Errorf("oracle.retries must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.ViewPolicy {
	case "proof", "unique":
	default:
		return fmt.Errorf("views.policy must be \"proof\" or \"unique\", got %q", c.ViewPolicy)
	}
	if c.RateLimitWindow <= 0 || c.RateLimitLimit <= 0 {
		return fmt.Errorf("ratelimit.window and ratelimit.limit must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
