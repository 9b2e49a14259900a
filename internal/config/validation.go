package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Validate validates the configuration shared by every command: storage,
// pool tuning and the optional archive. The Gemini credential is checked
// separately by ValidateAnalysis, so the dashboard and migrate commands
// run without one.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 1. Analysis timeout (seconds); upper bound keeps a stuck request from
	// pinning an HTTP worker indefinitely
	if c.AnalysisTimeoutSeconds < 10 || c.AnalysisTimeoutSeconds > 3600 {
		return fmt.Errorf("%w: must be between 10 and 3600 seconds, got %d",
			ErrInvalidAnalysisTimeout, c.AnalysisTimeoutSeconds)
	}

	// 2. PostgreSQL configuration validation
	if c.DBHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidDBHost)
	}

	if c.DBPort < 1 || c.DBPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidDBPort, c.DBPort)
	}

	if c.DBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidDBName)
	}

	if c.DBPassword == "screenlens_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change db_password for production deployments")
	}

	// 3. Pool tuning validation. Zero pool size is legal for DB_MAX_OVERFLOW
	// but not DB_POOL_SIZE: the pool must retain at least one connection.
	if c.DBPoolSize < 1 || c.DBPoolSize > 1000 {
		return fmt.Errorf("%w: must be between 1 and 1000, got %d", ErrInvalidPoolSize, c.DBPoolSize)
	}

	if c.DBMaxOverflow < 0 || c.DBMaxOverflow > 1000 {
		return fmt.Errorf("%w: must be between 0 and 1000, got %d", ErrInvalidMaxOverflow, c.DBMaxOverflow)
	}

	// 4. SSL mode validation.
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.DBSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidSSLMode, c.DBSSLMode, validSSLModes)
	}

	// 5. Document archive validation (only when enabled)
	if c.MongoURI != "" {
		if !strings.HasPrefix(c.MongoURI, "mongodb://") && !strings.HasPrefix(c.MongoURI, "mongodb+srv://") {
			return fmt.Errorf("%w: must start with mongodb:// or mongodb+srv://", ErrInvalidMongoURI)
		}
		if c.MongoDBName == "" {
			return fmt.Errorf("%w: MONGODB_DB_NAME is required when a cluster URI is set",
				ErrIncompleteMongoConfig)
		}
		if c.MongoCollection == "" {
			return fmt.Errorf("%w: MONGODB_COLLECTION_NAME is required when a cluster URI is set",
				ErrIncompleteMongoConfig)
		}
	}

	return nil
}

// ValidateAnalysis checks the settings the analysis pipeline needs on
// top of Validate. The serve command calls it; commands that never talk
// to Gemini skip it.
func (c *Config) ValidateAnalysis() error {
	if c.GeminiKey == "" {
		return fmt.Errorf("%w: GEMINI_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingGeminiKey)
	}

	if c.ModelChoice == "" {
		return fmt.Errorf("%w: model_choice cannot be empty", ErrInvalidModelChoice)
	}

	return nil
}
