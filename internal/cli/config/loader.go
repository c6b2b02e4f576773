package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// EnvPrefix prefixes structured environment overrides, e.g.
// KLEOS_MINDSDB__HOST.
const EnvPrefix = "KLEOS_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// legacyEnv maps the bare variable names of older setups to config keys.
var legacyEnv = map[string]string{
	"MINDSDB_HOST":           "mindsdb.host",
	"MINDSDB_PORT":           "mindsdb.port",
	"MINDSDB_USER":           "mindsdb.user",
	"MINDSDB_PASSWORD":       "mindsdb.password",
	"MINDSDB_PROJECT":        "mindsdb.project",
	"GOOGLE_GEMINI_API_KEY":  "llm.api_key",
	"GOOGLE_MODEL":           "llm.model",
	"OLLAMA_BASE_URL":        "embedding.base_url",
	"OLLAMA_EMBEDDING_MODEL": "embedding.model",
	"OLLAMA_RERANKING_MODEL": "reranking.model",
}

// flagKeys bridges connection flags to their nested config keys.
var flagKeys = map[string]string{
	"host":      "mindsdb.host",
	"port":      "mindsdb.port",
	"user":      "mindsdb.user",
	"password":  "mindsdb.password",
	"project":   "mindsdb.project",
	"transport": "mindsdb.transport",
	"timeout":   "mindsdb.timeout",
}

// flags that select how config is loaded rather than what it holds.
var skipFlags = map[string]bool{
	"config":  true,
	"help":    true,
	"version": true,
}

// defaults returns the built-in configuration layer.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"mindsdb.host":          DefaultHost,
		"mindsdb.project":       DefaultProject,
		"mindsdb.transport":     DefaultTransport,
		"mindsdb.timeout":       DefaultTimeout.String(),
		"mindsdb.sslmode":       "disable",
		"embedding.provider":    DefaultEmbedProvider,
		"embedding.model":       DefaultEmbedModel,
		"embedding.base_url":    DefaultOllamaURL,
		"llm.provider":          DefaultLLMProvider,
		"llm.model":             DefaultLLMModel,
		"hackernews.datasource": DefaultDatasource,
		"verbose":               false,
		"output":                DefaultOutput,
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > ./kleos.yaml > ./kleos.yml > user config dir.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"kleos.yaml", "kleos.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "kleos", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables. Bare legacy names first so the
	// structured KLEOS_ form wins when both are set.
	legacy := map[string]interface{}{}
	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			legacy[key] = v
		}
	}
	if len(legacy) > 0 {
		if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}
	}
	// Transform: KLEOS_MINDSDB__HOST -> mindsdb.host
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed || skipFlags[f.Name] {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			// Transform kebab-case to snake_case for config keys
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Apply the selected profile over the mindsdb block
	if cfg.Profile != "" {
		p, ok := cfg.Profiles[cfg.Profile]
		if !ok {
			return nil, fmt.Errorf("profile %q is not defined in profiles", cfg.Profile)
		}
		// Explicit connection flags still win over the profile
		explicit, err := connectionFlags(flags)
		if err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
		cfg.MindsDB = MergeMindsDBConfig(MergeMindsDBConfig(cfg.MindsDB, p), explicit)
	}

	// Expand environment variables in secrets
	expandSecretEnvVars(&cfg)

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// connectionFlags returns only the connection settings given as flags.
func connectionFlags(flags *pflag.FlagSet) (MindsDBConfig, error) {
	var out MindsDBConfig
	if flags == nil {
		return out, nil
	}
	fk := koanf.New(".")
	if err := fk.Load(posflag.ProviderWithFlag(flags, ".", fk, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return out, err
	}
	if err := fk.Unmarshal("mindsdb", &out); err != nil {
		return out, err
	}
	return out, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// All returns the flattened effective configuration.
func All() map[string]interface{} {
	return k.All()
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandSecretEnvVars expands environment variables in credential fields.
func expandSecretEnvVars(c *Config) {
	c.MindsDB.Host = expandEnvVars(c.MindsDB.Host)
	c.MindsDB.User = expandEnvVars(c.MindsDB.User)
	c.MindsDB.Password = expandEnvVars(c.MindsDB.Password)
	c.Embedding.APIKey = expandEnvVars(c.Embedding.APIKey)
	c.Reranking.APIKey = expandEnvVars(c.Reranking.APIKey)
	c.LLM.APIKey = expandEnvVars(c.LLM.APIKey)
}

// MergeMindsDBConfig merges two connection configs, with override taking precedence.
func MergeMindsDBConfig(base, override MindsDBConfig) MindsDBConfig {
	merged := base
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Project != "" {
		merged.Project = override.Project
	}
	if override.Transport != "" {
		merged.Transport = override.Transport
	}
	if override.Timeout != 0 {
		merged.Timeout = override.Timeout
	}
	if override.SSLMode != "" {
		merged.SSLMode = override.SSLMode
	}
	return merged
}
