// Package auth resolves LLM provider credentials.
package auth

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/yolodolo42/chatchain/internal/llm"
)

// ErrNoCredential means no source holds a key for the provider.
var ErrNoCredential = errors.New("no API key found")

var envRef = regexp.MustCompile(`\{env:([^}]+)\}`)

// Manager looks up provider keys in the environment, the config file and
// the local credential store, in that order.
type Manager struct {
	store *Store
	v     *viper.Viper
}

// NewManager opens the credential store under dataDir. v may be nil, in
// which case the global viper instance is consulted.
func NewManager(dataDir string, v *viper.Viper) (*Manager, error) {
	store, err := NewStore(dataDir)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = viper.GetViper()
	}
	return &Manager{store: store, v: v}, nil
}

// GetAPIKey returns the key for a provider using priority resolution:
// 1. Environment variable
// 2. Config file llm.providers.<id>.api_key (with {env:VAR} substitution)
// 3. Stored auth.json
func (m *Manager) GetAPIKey(providerID llm.ProviderID) (string, error) {
	if envVar := llm.EnvVarForProvider(providerID); envVar != "" {
		if key := os.Getenv(envVar); key != "" {
			return key, nil
		}
	}

	if key := m.v.GetString(configKey(providerID)); key != "" {
		if resolved := resolveEnvSubstitution(key); resolved != "" {
			return resolved, nil
		}
	}

	cred, err := m.store.GetCredential(providerID)
	if err == nil && cred.Key != "" {
		return cred.Key, nil
	}

	return "", fmt.Errorf("%w for provider: %s", ErrNoCredential, providerID)
}

// SetAPIKey stores an API key for a provider
func (m *Manager) SetAPIKey(providerID llm.ProviderID, key string) error {
	return m.store.SetCredential(providerID, Credential{Key: key})
}

// RemoveCredential removes stored credentials for a provider
func (m *Manager) RemoveCredential(providerID llm.ProviderID) error {
	return m.store.RemoveCredential(providerID)
}

// HasCredential reports whether any source holds a key for the provider.
func (m *Manager) HasCredential(providerID llm.ProviderID) bool {
	_, err := m.GetAPIKey(providerID)
	return err == nil
}

// ListConnected returns all providers with credentials
func (m *Manager) ListConnected() []llm.ProviderID {
	connected := make([]llm.ProviderID, 0)
	for _, id := range llm.AllProviderIDs() {
		if m.HasCredential(id) {
			connected = append(connected, id)
		}
	}
	return connected
}

// GetDefaultProvider returns the stored default provider, if any.
func (m *Manager) GetDefaultProvider() llm.ProviderID {
	return m.store.GetDefaultProvider()
}

// SetDefaultProvider sets the default provider
func (m *Manager) SetDefaultProvider(providerID llm.ProviderID) error {
	return m.store.SetDefaultProvider(providerID)
}

// Resolve picks the provider to parse with: preferred when it has a key,
// then the stored default, then the first connected provider. ok is false
// when nothing is connected and parsing should stay local.
func (m *Manager) Resolve(preferred llm.ProviderID) (id llm.ProviderID, key string, ok bool) {
	candidates := []llm.ProviderID{}
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	if def := m.GetDefaultProvider(); def != "" {
		candidates = append(candidates, def)
	}
	candidates = append(candidates, llm.AllProviderIDs()...)

	for _, id := range candidates {
		if key, err := m.GetAPIKey(id); err == nil {
			return id, key, true
		}
	}
	return "", "", false
}

func configKey(providerID llm.ProviderID) string {
	return fmt.Sprintf("llm.providers.%s.api_key", providerID)
}

// resolveEnvSubstitution replaces {env:VAR_NAME} with environment variable values
func resolveEnvSubstitution(value string) string {
	if !strings.Contains(value, "{env:") {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[5 : len(match)-1])
	})
}
