// Package config loads and validates the environment-variable
// configuration the engine needs to run, following the teacher's
// load-then-validate startup sequence: .env first, then explicit
// required-field checks that surface as a workflowstate.ConfigError.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BTreeMap/datcomagent/internal/util"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived settings every
// component needs. Fields mirror spec.md §6's required/optional
// variable table exactly.
type Config struct {
	VectorDBURL      string
	EmbedAPIBase     string
	EmbedAPIKey      string
	EmbedModel       string
	EmbedBatchSize   int
	ChatAPIBase      string
	ChatAPIKey       string
	ChatModel        string
	DefaultTopK      int
	ContentMaxLength int
	Temperature      float64
	VerifySSL        bool
	AgentMaxIters    int
}

// Load reads a .env file if present (teacher's godotenv.Load()
// convention; a missing file is not an error), then populates Config
// from the process environment, applying the documented defaults and
// validating every required field is non-empty.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// godotenv.Load returns an error when .env doesn't exist; that
		// is expected in production where config comes purely from the
		// environment, so only log it, matching the teacher's
		// tolerant startup sequence.
	}

	cfg := &Config{
		VectorDBURL:      os.Getenv("VECTOR_DB_URL"),
		EmbedAPIBase:     os.Getenv("EMBED_API_BASE"),
		EmbedAPIKey:      os.Getenv("EMBED_API_KEY"),
		EmbedModel:       os.Getenv("EMBED_MODEL"),
		EmbedBatchSize:   intEnv("EMBED_BATCH_SIZE", 8),
		ChatAPIBase:      os.Getenv("CHAT_API_BASE"),
		ChatAPIKey:       os.Getenv("CHAT_API_KEY"),
		ChatModel:        os.Getenv("CHAT_MODEL"),
		DefaultTopK:      intEnv("DEFAULT_TOP_K", 10),
		ContentMaxLength: intEnv("CONTENT_MAX_LENGTH", 800),
		Temperature:      floatEnv("TEMPERATURE", 0),
		VerifySSL:        util.ParseBoolEnv("VERIFY_SSL", true),
		AgentMaxIters:    intEnv("AGENT_MAX_ITERATIONS", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, workflowstate.ConfigError("config.Load", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"VECTOR_DB_URL": c.VectorDBURL,
		"EMBED_API_BASE": c.EmbedAPIBase,
		"EMBED_API_KEY":  c.EmbedAPIKey,
		"EMBED_MODEL":    c.EmbedModel,
		"CHAT_API_BASE":  c.ChatAPIBase,
		"CHAT_API_KEY":   c.ChatAPIKey,
		"CHAT_MODEL":     c.ChatModel,
	}
	for name, val := range required {
		if val == "" {
			return fmt.Errorf("required environment variable %s is not set", name)
		}
	}
	if c.DefaultTopK < 1 || c.DefaultTopK > 20 {
		return fmt.Errorf("DEFAULT_TOP_K must be between 1 and 20, got %d", c.DefaultTopK)
	}
	if c.ContentMaxLength < 100 || c.ContentMaxLength > 2000 {
		return fmt.Errorf("CONTENT_MAX_LENGTH must be between 100 and 2000, got %d", c.ContentMaxLength)
	}
	return nil
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
