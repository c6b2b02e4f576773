package commands

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// decodeJSONFlag parses a JSON object flag into dst. Numbers are kept as
// json.Number so integers are emitted unchanged.
func decodeJSONFlag(flag, value string, dst any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return flagErrorf(flag, "must be a JSON object: %v", err)
	}
	if dec.More() {
		return flagErrorf(flag, "must be a single JSON object")
	}
	return nil
}

// parseMetadataMap reads --metadata-map. An unset flag yields nil, which
// selects the table defaults.
func parseMetadataMap(value string) (map[string]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	m := map[string]string{}
	if err := decodeJSONFlag("metadata-map", value, &m); err != nil {
		return nil, flagErrorf("metadata-map", "must be a JSON object of string to string")
	}
	return m, nil
}

// parseParams turns repeated key=value flags into typed engine parameters.
func parseParams(flag string, values []string) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, flagErrorf(flag, "expected key=value, got %q", kv)
		}
		out[k] = mindsql.CoerceScalar(strings.TrimSpace(v))
	}
	return out, nil
}

// modelFlags are the provider flags for one model role.
type modelFlags struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// bind registers --<prefix>-provider and friends. modelName names the
// model flag, which differs between roles.
func (f *modelFlags) bind(fs *pflag.FlagSet, prefix, modelName, role string) {
	fs.StringVar(&f.Provider, prefix+"-provider", "", role+" provider (default from config)")
	fs.StringVar(&f.Model, modelName, "", role+" model name (default from config)")
	fs.StringVar(&f.BaseURL, prefix+"-base-url", "", role+" provider base URL")
	fs.StringVar(&f.APIKey, prefix+"-api-key", "", role+" provider API key (default from config or keyring)")
}

func isOllama(provider string) bool {
	return strings.EqualFold(provider, "ollama")
}

// resolve fills unset flags from cfg. Config values only apply when the
// provider matches the configured one. The Ollama base URL is the only
// implicit default.
func (f modelFlags) resolve(cfg config.ModelConfig) mindsql.ModelConfig {
	m := mindsql.ModelConfig{Provider: f.Provider, Model: f.Model, BaseURL: f.BaseURL, APIKey: f.APIKey}
	if m.Provider == "" {
		m.Provider = cfg.Provider
	}
	same := strings.EqualFold(m.Provider, cfg.Provider)
	if m.Model == "" && same {
		m.Model = cfg.Model
	}
	if m.APIKey == "" && same {
		m.APIKey = cfg.APIKey
	}
	if m.BaseURL == "" {
		switch {
		case same && cfg.BaseURL != "" && (isOllama(m.Provider) || cfg.BaseURL != config.DefaultOllamaURL):
			m.BaseURL = cfg.BaseURL
		case isOllama(m.Provider):
			m.BaseURL = config.DefaultOllamaURL
		}
	}
	return m
}

// resolveReranking resolves the optional reranking model. Without a model
// from flags or config, reranking is disabled. The provider falls back to
// the embedding provider, sharing its base URL and key.
func (f modelFlags) resolveReranking(cfg config.ModelConfig, embedding mindsql.ModelConfig) (mindsql.ModelConfig, error) {
	if f.Model == "" && cfg.Model == "" {
		if f.Provider != "" {
			return mindsql.ModelConfig{}, flagErrorf("reranking-model", "is required with --reranking-provider")
		}
		return mindsql.ModelConfig{}, nil
	}
	if cfg.Provider == "" {
		cfg.Provider = embedding.Provider
		cfg.APIKey = embedding.APIKey
		if cfg.BaseURL == "" {
			cfg.BaseURL = embedding.BaseURL
		}
	}
	m := f.resolve(cfg)
	if m.Model == "" {
		return mindsql.ModelConfig{}, flagErrorf("reranking-model", "is required for provider %q", m.Provider)
	}
	return m, nil
}
