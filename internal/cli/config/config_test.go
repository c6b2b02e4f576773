package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no config-related
// environment so a developer's own setup cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	for name := range legacyEnv {
		t.Setenv(name, "")
	}
	ResetConfig()
	return dir
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("profile", "", "")
	fs.String("output", DefaultOutput, "")
	fs.Bool("verbose", false, "")
	fs.String("host", "", "")
	fs.Int("port", 0, "")
	fs.String("user", "", "")
	fs.String("password", "", "")
	fs.String("project", "", "")
	fs.String("transport", "", "")
	return fs
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "kleos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.MindsDB.Host)
	assert.Equal(t, DefaultProject, cfg.MindsDB.Project)
	assert.Equal(t, "http", cfg.MindsDB.Transport)
	assert.Equal(t, 60*time.Second, cfg.MindsDB.Timeout)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, DefaultOllamaURL, cfg.Embedding.BaseURL)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "hackernews", cfg.HackerNews.Datasource)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
	require.NoError(t, cfg.Validate())

	ac := cfg.AdapterConfig()
	assert.Equal(t, DefaultHTTPPort, ac.Port)
	assert.Equal(t, "http://127.0.0.1:47334", cfg.ServerURL())
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
mindsdb:
  host: http://file-host
  port: 1111
  project: from_file
output: json
`)

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := LoadConfig("", newFlags())
		require.NoError(t, err)
		assert.Equal(t, "kleos.yaml", GetConfigFileUsed())
		assert.Equal(t, "http://file-host", cfg.MindsDB.Host)
		assert.Equal(t, 1111, cfg.MindsDB.Port)
		assert.Equal(t, "json", cfg.OutputFormat)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("KLEOS_MINDSDB__PORT", "2222")
		t.Setenv("MINDSDB_HOST", "http://legacy-host")
		cfg, err := LoadConfig("", newFlags())
		require.NoError(t, err)
		assert.Equal(t, 2222, cfg.MindsDB.Port)
		assert.Equal(t, "http://legacy-host", cfg.MindsDB.Host)
	})

	t.Run("structured env beats legacy env", func(t *testing.T) {
		t.Setenv("MINDSDB_PROJECT", "legacy")
		t.Setenv("KLEOS_MINDSDB__PROJECT", "structured")
		cfg, err := LoadConfig("", newFlags())
		require.NoError(t, err)
		assert.Equal(t, "structured", cfg.MindsDB.Project)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("KLEOS_MINDSDB__PORT", "2222")
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--port", "3333", "--project", "cli", "--output", "yaml"}))
		cfg, err := LoadConfig("", fs)
		require.NoError(t, err)
		assert.Equal(t, 3333, cfg.MindsDB.Port)
		assert.Equal(t, "cli", cfg.MindsDB.Project)
		assert.Equal(t, "yaml", cfg.OutputFormat)
	})

	t.Run("unchanged flags do not override", func(t *testing.T) {
		cfg, err := LoadConfig("", newFlags())
		require.NoError(t, err)
		assert.Equal(t, "from_file", cfg.MindsDB.Project)
	})
}

func TestLoadConfig_Profile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
mindsdb:
  host: http://local
  project: mindsdb
profiles:
  cloud:
    host: https://cloud.mindsdb.com
    user: me@example.com
    password: ${KLEOS_TEST_PW}
    transport: http
`)
	t.Setenv("KLEOS_TEST_PW", "s3cret")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--profile", "cloud", "--project", "analytics"}))
	cfg, err := LoadConfig(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "https://cloud.mindsdb.com", cfg.MindsDB.Host)
	assert.Equal(t, "me@example.com", cfg.MindsDB.User)
	assert.Equal(t, "s3cret", cfg.MindsDB.Password)
	assert.Equal(t, "analytics", cfg.MindsDB.Project)

	fs = newFlags()
	require.NoError(t, fs.Parse([]string{"--profile", "missing"}))
	_, err = LoadConfig(path, fs)
	assert.ErrorContains(t, err, `profile "missing"`)
}

func TestLoadConfig_BadFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "mindsdb: [unclosed")
	_, err := LoadConfig(path, nil)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{MindsDB: MindsDBConfig{Transport: "http"}, OutputFormat: "auto"}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "postgres", mutate: func(c *Config) { c.MindsDB.Transport = "postgres" }},
		{name: "empty transport uses default", mutate: func(c *Config) { c.MindsDB.Transport = "" }},
		{name: "transport alias", mutate: func(c *Config) { c.MindsDB.Transport = "PostgreSQL" }},
		{name: "unknown transport", mutate: func(c *Config) { c.MindsDB.Transport = "grpc" }, errSubstr: "unknown transport"},
		{name: "bad port", mutate: func(c *Config) { c.MindsDB.Port = 70000 }, errSubstr: "out of range"},
		{name: "bad output", mutate: func(c *Config) { c.OutputFormat = "html" }, errSubstr: "invalid output format"},
		{name: "undefined profile", mutate: func(c *Config) { c.Profile = "x" }, errSubstr: "not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestAdapterConfig_PostgresDefaults(t *testing.T) {
	cfg := &Config{MindsDB: MindsDBConfig{
		Transport: "postgres",
		Host:      "http://10.0.0.5",
		Project:   "mindsdb",
		SSLMode:   "require",
	}}
	ac := cfg.AdapterConfig()
	assert.Equal(t, DefaultPostgresPort, ac.Port)
	assert.Equal(t, "require", ac.Options["sslmode"])
	assert.Equal(t, "postgres://10.0.0.5:55432/mindsdb", cfg.ServerURL())
}

func TestMergeMindsDBConfig(t *testing.T) {
	base := MindsDBConfig{Host: "a", Port: 1, Project: "p", Transport: "http"}
	merged := MergeMindsDBConfig(base, MindsDBConfig{Port: 2, User: "u"})
	assert.Equal(t, MindsDBConfig{Host: "a", Port: 2, User: "u", Project: "p", Transport: "http"}, merged)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("KLEOS_TEST_VALUE", "xyz")
	assert.Equal(t, "key-xyz", expandEnvVars("key-${KLEOS_TEST_VALUE}"))
	assert.Equal(t, "${KLEOS_TEST_UNSET}", expandEnvVars("${KLEOS_TEST_UNSET}"))
}

func TestGetLogger_Fallback(t *testing.T) {
	logger := GetLogger(context.Background())
	require.NotNil(t, logger)
	logger.Info("discarded")
}

func TestAdapterConfig_TransportAliases(t *testing.T) {
	tests := []struct {
		transport string
		wantType  string
		wantPort  int
		wantURL   string
	}{
		{"", "http", DefaultHTTPPort, "http://127.0.0.1:47334"},
		{"REST", "http", DefaultHTTPPort, "http://127.0.0.1:47334"},
		{"pg", "postgres", DefaultPostgresPort, "postgres://127.0.0.1:55432/mindsdb"},
		{"postgresql", "postgres", DefaultPostgresPort, "postgres://127.0.0.1:55432/mindsdb"},
	}
	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			cfg := &Config{MindsDB: MindsDBConfig{Transport: tt.transport, Host: DefaultHost, Project: "mindsdb"}}
			ac := cfg.AdapterConfig()
			assert.Equal(t, tt.wantType, ac.Type)
			assert.Equal(t, tt.wantPort, ac.Port)
			assert.Equal(t, tt.wantURL, cfg.ServerURL())
		})
	}

	explicit := &Config{MindsDB: MindsDBConfig{Transport: "pg", Port: 6543}}
	assert.Equal(t, 6543, explicit.AdapterConfig().Port)
}
