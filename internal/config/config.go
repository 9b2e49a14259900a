// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.screenlens/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: Gemini credential and model selection
//   - Storage: PostgreSQL connection and pool tuning (see storage.go)
//   - Archive: MongoDB Atlas document store
//   - Serve: CORS origins and proxy trust for the HTTP API
//
// Security: sensitive data (credentials) are never logged; the config
// directory uses 0750 permissions.
// Validation: range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingGeminiKey indicates the GEMINI_KEY credential is missing.
	ErrMissingGeminiKey = errors.New("missing GEMINI_KEY")

	// ErrInvalidModelChoice indicates the model identifier is invalid.
	ErrInvalidModelChoice = errors.New("invalid model choice")

	// ErrInvalidDBHost indicates the PostgreSQL host is invalid.
	ErrInvalidDBHost = errors.New("invalid database host")

	// ErrInvalidDBPort indicates the PostgreSQL port is out of range.
	ErrInvalidDBPort = errors.New("invalid database port")

	// ErrInvalidDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidDBName = errors.New("invalid database name")

	// ErrInvalidPoolSize indicates the connection pool size is out of range.
	ErrInvalidPoolSize = errors.New("invalid pool size")

	// ErrInvalidMaxOverflow indicates the pool overflow value is out of range.
	ErrInvalidMaxOverflow = errors.New("invalid max overflow")

	// ErrInvalidSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidSSLMode = errors.New("invalid SSL mode")

	// ErrInvalidMongoURI indicates the MongoDB cluster URI is malformed.
	ErrInvalidMongoURI = errors.New("invalid MongoDB cluster URI")

	// ErrIncompleteMongoConfig indicates a cluster URI was set without a
	// database or collection name.
	ErrIncompleteMongoConfig = errors.New("incomplete MongoDB configuration")

	// ErrInvalidAnalysisTimeout indicates the analysis timeout is out of range.
	ErrInvalidAnalysisTimeout = errors.New("invalid analysis timeout")
)

// DefaultModelChoice is the Gemini model used when MODEL_CHOICE is unset.
const DefaultModelChoice = "gemini-2.0-flash"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, URIs with
// credentials), update MarshalJSON.
type Config struct {
	// LLM configuration
	GeminiKey   string `mapstructure:"gemini_key" json:"gemini_key"` // SENSITIVE: masked in MarshalJSON
	ModelChoice string `mapstructure:"model_choice" json:"model_choice"`

	// Analysis configuration
	AnalysisTimeoutSeconds int `mapstructure:"analysis_timeout_seconds" json:"analysis_timeout_seconds"`

	// Relational storage configuration (see storage.go for helpers)
	DBUser        string `mapstructure:"db_user" json:"db_user"`
	DBPassword    string `mapstructure:"db_password" json:"db_password"` // SENSITIVE: masked in MarshalJSON
	DBHost        string `mapstructure:"db_host" json:"db_host"`
	DBPort        int    `mapstructure:"db_port" json:"db_port"`
	DBName        string `mapstructure:"db_name" json:"db_name"`
	DBPoolSize    int    `mapstructure:"db_pool_size" json:"db_pool_size"`
	DBMaxOverflow int    `mapstructure:"db_max_overflow" json:"db_max_overflow"`
	DBEcho        bool   `mapstructure:"db_echo" json:"db_echo"`
	DBSSLMode     string `mapstructure:"db_ssl_mode" json:"db_ssl_mode"`

	// Document archive configuration (MongoDB Atlas). Archive is disabled
	// when MongoURI is empty.
	MongoURI        string `mapstructure:"mongodb_atlas_cluster_uri" json:"mongodb_atlas_cluster_uri"` // SENSITIVE: masked in MarshalJSON
	MongoDBName     string `mapstructure:"mongodb_db_name" json:"mongodb_db_name"`
	MongoCollection string `mapstructure:"mongodb_collection_name" json:"mongodb_collection_name"`

	// Serve configuration
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".screenlens")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// LLM defaults
	viper.SetDefault("model_choice", DefaultModelChoice)

	// Analysis defaults (matches the original 300s request budget)
	viper.SetDefault("analysis_timeout_seconds", 300)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("db_user", "screenlens")
	viper.SetDefault("db_password", "screenlens_dev_password")
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_name", "screenlens")
	viper.SetDefault("db_pool_size", 5)
	viper.SetDefault("db_max_overflow", 10)
	viper.SetDefault("db_echo", true)
	viper.SetDefault("db_ssl_mode", "disable")

	// CORS defaults (dashboard dev server)
	viper.SetDefault("cors_origins", []string{"http://localhost:8501"})

	// Proxy trust (default false — safe for direct exposure)
	viper.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds environment variables explicitly. The names match
// the deployment documentation: GEMINI_KEY, MODEL_CHOICE, DB_*, MONGODB_*.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_key", "GEMINI_KEY")
	mustBind("model_choice", "MODEL_CHOICE")

	mustBind("db_user", "DB_USER")
	mustBind("db_password", "DB_PASSWORD")
	mustBind("db_host", "DB_HOST")
	mustBind("db_port", "DB_PORT")
	mustBind("db_name", "DB_NAME")
	mustBind("db_pool_size", "DB_POOL_SIZE")
	mustBind("db_max_overflow", "DB_MAX_OVERFLOW")
	mustBind("db_echo", "DB_ECHO")
	mustBind("db_ssl_mode", "DB_SSL_MODE")

	mustBind("mongodb_atlas_cluster_uri", "MONGODB_ATLAS_CLUSTER_URI")
	mustBind("mongodb_db_name", "MONGODB_DB_NAME")
	mustBind("mongodb_collection_name", "MONGODB_COLLECTION_NAME")

	mustBind("cors_origins", "SCREENLENS_CORS_ORIGINS")
	mustBind("trust_proxy", "SCREENLENS_TRUST_PROXY")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked to prevent substring attacks;
// longer secrets show the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - GeminiKey
//   - DBPassword
//   - MongoURI (Atlas URIs embed credentials)
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiKey = maskSecret(a.GeminiKey)
	a.DBPassword = maskSecret(a.DBPassword)
	a.MongoURI = maskSecret(a.MongoURI)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Example: "googleai/gemini-2.0-flash". If ModelChoice already contains a
// "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelChoice, "/") {
		return c.ModelChoice
	}
	return "googleai/" + c.ModelChoice
}

// ArchiveEnabled reports whether the MongoDB document archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.MongoURI != ""
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
