package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/ocx/econcore/internal/notify"
)

// ScopesConfig holds per-scope overrides.
type ScopesConfig struct {
	Scopes map[string]Config `yaml:"scopes"`
}

// Manager resolves the effective configuration for a scope.
type Manager struct {
	globalConfig *Config
	scopeConfigs map[string]Config
	mu           sync.RWMutex
}

// NewManager wraps an already loaded global config and reads scope
// overrides from scopesPath. A missing scopes file means no overrides.
func NewManager(global *Config, scopesPath string) (*Manager, error) {
	m := &Manager{globalConfig: global, scopeConfigs: make(map[string]Config)}
	if scopesPath == "" {
		return m, nil
	}

	f, err := os.Open(scopesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	var sc ScopesConfig
	if err := yaml.NewDecoder(f).Decode(&sc); err != nil {
		return nil, err
	}
	if sc.Scopes != nil {
		m.scopeConfigs = sc.Scopes
	}
	return m, nil
}

// Get returns the effective config for a scope: the global config with the
// scope's non-zero sections applied.
func (m *Manager) Get(scope string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.globalConfig
	effective.Core.Scope = scope

	override, ok := m.scopeConfigs[scope]
	if !ok {
		return &effective
	}

	if override.Core.DefaultStepCount != 0 {
		effective.Core.DefaultStepCount = override.Core.DefaultStepCount
	}
	if override.Core.DefaultProfileID != "" {
		effective.Core.DefaultProfileID = override.Core.DefaultProfileID
	}
	if override.Notify.HistoryCap != 0 {
		effective.Notify.HistoryCap = override.Notify.HistoryCap
	}
	if override.Notify.ToastCap != 0 {
		effective.Notify.ToastCap = override.Notify.ToastCap
	}
	if override.Notify.ToastTTLMs != 0 {
		effective.Notify.ToastTTLMs = override.Notify.ToastTTLMs
	}
	if len(override.Notify.Templates) > 0 {
		merged := make(map[string]notify.Template, len(effective.Notify.Templates)+len(override.Notify.Templates))
		for k, v := range effective.Notify.Templates {
			merged[k] = v
		}
		for k, v := range override.Notify.Templates {
			merged[k] = v
		}
		effective.Notify.Templates = merged
	}
	if override.Audit.Capacity != 0 {
		effective.Audit = override.Audit
	}

	return &effective
}
