package adapter_test

import (
	"testing"

	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import transport packages to ensure they are registered via init()
	_ "github.com/kleos-cli/kleos/pkg/adapters/rest"
	_ "github.com/kleos-cli/kleos/pkg/adapters/postgres"
)

func TestSelfRegistration(t *testing.T) {
	tests := []struct {
		name        string
		adapterName string
		expected    bool
	}{
		{"http registered", "http", true},
		{"postgres registered", "postgres", true},
		{"unknown not registered", "mysql", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.IsRegistered(tt.adapterName))
		})
	}
}

func TestNewAdapter_Registered(t *testing.T) {
	for _, name := range []string{"http", "postgres"} {
		a, err := adapter.NewAdapter(adapter.Config{Type: name}, nil)
		require.NoError(t, err, name)
		assert.NotNil(t, a, name)
	}
}

func TestNewAdapter_DefaultsToHTTP(t *testing.T) {
	cfg, tr, err := adapter.Resolve(adapter.Config{})
	require.NoError(t, err)
	assert.Equal(t, adapter.DefaultTransport, tr.Name)
	assert.Equal(t, "http", cfg.Type)
	assert.Equal(t, 47334, cfg.Port)

	a, err := adapter.NewAdapter(adapter.Config{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestTransportAliases(t *testing.T) {
	for alias, want := range map[string]string{
		"https": "http", "REST": "http", "postgresql": "postgres", "pg": "postgres",
	} {
		tr, ok := adapter.Lookup(alias)
		require.True(t, ok, alias)
		assert.Equal(t, want, tr.Name, alias)
	}
	assert.Equal(t, []string{"http", "postgres"}, filterBuiltin(adapter.ListAdapters()))
}

func filterBuiltin(names []string) []string {
	var out []string
	for _, n := range names {
		if n == "http" || n == "postgres" {
			out = append(out, n)
		}
	}
	return out
}
