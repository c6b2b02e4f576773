package config

import (
	"fmt"

	"github.com/kleos-cli/kleos/pkg/adapter"
)

var outputModes = map[string]bool{
	"auto":     true,
	"text":     true,
	"markdown": true,
	"json":     true,
	"yaml":     true,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !adapter.IsRegistered(c.MindsDB.Transport) {
		return &adapter.UnknownAdapterError{Type: c.MindsDB.Transport, Available: adapter.ListAdapters()}
	}
	if c.MindsDB.Port < 0 || c.MindsDB.Port > 65535 {
		return fmt.Errorf("mindsdb.port %d is out of range", c.MindsDB.Port)
	}
	if c.MindsDB.Timeout < 0 {
		return fmt.Errorf("mindsdb.timeout must not be negative")
	}
	if !outputModes[c.OutputFormat] {
		return fmt.Errorf("invalid output format %q\nHint: Use auto, text, markdown, json, or yaml", c.OutputFormat)
	}
	if c.Profile != "" {
		if _, ok := c.Profiles[c.Profile]; !ok {
			return fmt.Errorf("profile %q is not defined in profiles", c.Profile)
		}
	}
	return nil
}
