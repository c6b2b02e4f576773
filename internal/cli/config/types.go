// Package config provides configuration management for the kleos CLI.
//
// Settings are layered with koanf: built-in defaults, then the YAML config
// file, then environment variables, then explicitly set flags. Secrets
// left empty after layering are looked up in the OS keyring.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/adapters/postgres"
	"github.com/kleos-cli/kleos/pkg/adapters/rest"
	"github.com/kleos-cli/kleos/pkg/core"
)

// MindsDBConfig holds the connection settings for a MindsDB server.
type MindsDBConfig struct {
	Host      string        `koanf:"host"`
	Port      int           `koanf:"port"`
	User      string        `koanf:"user"`
	Password  string        `koanf:"password"`
	Project   string        `koanf:"project"`
	Transport string        `koanf:"transport"`
	Timeout   time.Duration `koanf:"timeout"`
	SSLMode   string        `koanf:"sslmode"`
}

// ModelConfig names a provider model used for embeddings, reranking, or
// agent answers.
type ModelConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// HackerNewsConfig holds HackerNews datasource settings.
type HackerNewsConfig struct {
	Datasource string `koanf:"datasource"`
}

// Config holds all CLI configuration options.
type Config struct {
	MindsDB      MindsDBConfig            `koanf:"mindsdb"`
	Embedding    ModelConfig              `koanf:"embedding"`
	Reranking    ModelConfig              `koanf:"reranking"`
	LLM          ModelConfig              `koanf:"llm"`
	HackerNews   HackerNewsConfig         `koanf:"hackernews"`
	Profile      string                   `koanf:"profile"`
	Profiles     map[string]MindsDBConfig `koanf:"profiles"`
	Verbose      bool                     `koanf:"verbose"`
	OutputFormat string                   `koanf:"output"`
	LogFile      string                   `koanf:"log_file"`
	HistoryFile  string                   `koanf:"history_file"`
}

// Default configuration values.
const (
	DefaultHost          = "http://127.0.0.1"
	DefaultHTTPPort      = rest.DefaultPort
	DefaultPostgresPort  = postgres.DefaultPort
	DefaultProject       = "mindsdb"
	DefaultTransport     = adapter.DefaultTransport
	DefaultTimeout       = 60 * time.Second
	DefaultOutput        = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultEmbedProvider = "ollama"
	DefaultEmbedModel    = "nomic-embed-text"
	DefaultOllamaURL     = "http://127.0.0.1:11434"
	DefaultLLMProvider   = "google_gemini"
	DefaultLLMModel      = "gemini-2.0-flash"
	DefaultDatasource    = "hackernews"
)

// AdapterConfig converts the MindsDB block into a transport configuration.
// Transport aliases are canonicalized and a zero port takes the
// transport's default; an unknown transport is left for Validate.
func (c *Config) AdapterConfig() core.AdapterConfig {
	m := c.MindsDB
	ac := core.AdapterConfig{
		Type:     m.Transport,
		Host:     m.Host,
		Port:     m.Port,
		Username: m.User,
		Password: m.Password,
		Project:  m.Project,
		Timeout:  m.Timeout,
	}
	if m.SSLMode != "" {
		ac.Options = map[string]string{"sslmode": m.SSLMode}
	}
	if resolved, _, err := adapter.Resolve(ac); err == nil {
		ac = resolved
	}
	return ac
}

// ServerURL returns a display form of the server address.
func (c *Config) ServerURL() string {
	ac := c.AdapterConfig()
	if ac.Type == "postgres" {
		host := strings.TrimPrefix(strings.TrimPrefix(ac.Host, "https://"), "http://")
		return "postgres://" + host + ":" + strconv.Itoa(ac.Port) + "/" + ac.Project
	}
	u, err := rest.BaseURL(ac.Host, ac.Port)
	if err != nil {
		return ac.Host
	}
	return u
}
