package config

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/99designs/keyring"
)

// KeyringService is the keyring service name secrets are stored under.
const KeyringService = "kleos"

// SecretKeys are the config keys that may be stored in the keyring.
var SecretKeys = []string{
	"mindsdb.password",
	"embedding.api_key",
	"reranking.api_key",
	"llm.api_key",
}

// ErrUnknownSecret is returned for keys outside SecretKeys.
var ErrUnknownSecret = errors.New("not a secret config key")

// SecretStore reads and writes secrets by config key.
type SecretStore struct {
	ring keyring.Keyring
}

// NewSecretStore wraps an opened keyring.
func NewSecretStore(ring keyring.Keyring) *SecretStore {
	return &SecretStore{ring: ring}
}

// OpenSecretStore opens the OS keyring using native backends.
func OpenSecretStore() (*SecretStore, error) {
	var backends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		backends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		backends = []keyring.BackendType{keyring.WinCredBackend}
	default:
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}

	cfg := keyring.Config{
		ServiceName:     KeyringService,
		AllowedBackends: backends,
		PassPrefix:      KeyringService,
		WinCredPrefix:   KeyringService,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return NewSecretStore(ring), nil
}

func checkSecretKey(key string) error {
	for _, k := range SecretKeys {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (one of %v)", ErrUnknownSecret, key, SecretKeys)
}

// Get returns the secret for key and whether it was found.
func (s *SecretStore) Get(key string) (string, bool, error) {
	if err := checkSecretKey(key); err != nil {
		return "", false, err
	}
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s from keyring: %w", key, err)
	}
	return string(item.Data), true, nil
}

// Set stores the secret for key.
func (s *SecretStore) Set(key, value string) error {
	if err := checkSecretKey(key); err != nil {
		return err
	}
	if err := s.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: KeyringService + " " + key}); err != nil {
		return fmt.Errorf("write %s to keyring: %w", key, err)
	}
	return nil
}

// Delete removes the secret for key. A missing secret is not an error.
func (s *SecretStore) Delete(key string) error {
	if err := checkSecretKey(key); err != nil {
		return err
	}
	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove %s from keyring: %w", key, err)
	}
	return nil
}

// Stored returns the secret keys present in the keyring, sorted.
func (s *SecretStore) Stored() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keyring: %w", err)
	}
	var out []string
	for _, k := range keys {
		if checkSecretKey(k) == nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Config) secretField(key string) *string {
	switch key {
	case "mindsdb.password":
		return &c.MindsDB.Password
	case "embedding.api_key":
		return &c.Embedding.APIKey
	case "reranking.api_key":
		return &c.Reranking.APIKey
	case "llm.api_key":
		return &c.LLM.APIKey
	}
	return nil
}

// ApplySecrets fills secrets that are still empty from the store and
// returns the keys it filled.
func (c *Config) ApplySecrets(s *SecretStore) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	var filled []string
	for _, key := range SecretKeys {
		field := c.secretField(key)
		if *field != "" {
			continue
		}
		v, ok, err := s.Get(key)
		if err != nil {
			return filled, err
		}
		if ok {
			*field = v
			filled = append(filled, key)
		}
	}
	return filled, nil
}

// Masked returns a copy of the config with secrets replaced for display.
func (c *Config) Masked() Config {
	m := *c
	for _, key := range SecretKeys {
		if f := m.secretField(key); *f != "" {
			*f = "********"
		}
	}
	if len(c.Profiles) > 0 {
		m.Profiles = make(map[string]MindsDBConfig, len(c.Profiles))
		for name, p := range c.Profiles {
			if p.Password != "" {
				p.Password = "********"
			}
			m.Profiles[name] = p
		}
	}
	return m
}
