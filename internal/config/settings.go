package config

import (
	"fmt"
	"sync"
)

// Provider keys.
const (
	KeyEndpointURL   = "apiUrl"
	KeyCredential    = "apiKey"
	KeyCategory      = "category"
	KeyVolunteerCode = "volunteerCode"
)

// Keys lists every settings key in display order.
var Keys = []string{KeyEndpointURL, KeyCredential, KeyCategory, KeyVolunteerCode}

// Provider is a persisted key/value store. Get returns "" for a key
// that was never set.
type Provider interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Settings are the operator-entered values.
type Settings struct {
	EndpointURL   string `json:"apiUrl"`
	Credential    string `json:"apiKey,omitempty"`
	Category      string `json:"category,omitempty"`
	VolunteerCode string `json:"volunteerCode,omitempty"`
}

// Value returns the setting stored under key.
func (s Settings) Value(key string) string {
	switch key {
	case KeyEndpointURL:
		return s.EndpointURL
	case KeyCredential:
		return s.Credential
	case KeyCategory:
		return s.Category
	case KeyVolunteerCode:
		return s.VolunteerCode
	}
	return ""
}

// With returns a copy of s with key set to value.
func (s Settings) With(key, value string) (Settings, error) {
	switch key {
	case KeyEndpointURL:
		s.EndpointURL = value
	case KeyCredential:
		s.Credential = value
	case KeyCategory:
		s.Category = value
	case KeyVolunteerCode:
		s.VolunteerCode = value
	default:
		return s, fmt.Errorf("unknown setting %q", key)
	}
	return s, nil
}

// Missing returns the required keys whose value is empty.
func (s Settings) Missing(required ...string) []string {
	var missing []string
	for _, key := range required {
		if s.Value(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ReadSettings reads every key from p.
func ReadSettings(p Provider) (Settings, error) {
	var s Settings
	for _, key := range Keys {
		v, err := p.Get(key)
		if err != nil {
			return Settings{}, fmt.Errorf("reading %s: %w", key, err)
		}
		s, _ = s.With(key, v)
	}
	return s, nil
}

// Live is the in-memory copy of the settings the orchestrator reads.
// It is loaded once from the provider and refreshed after every Save.
type Live struct {
	provider Provider

	mu       sync.RWMutex
	settings Settings
}

// NewLive reads p once.
func NewLive(p Provider) (*Live, error) {
	s, err := ReadSettings(p)
	if err != nil {
		return nil, err
	}
	return &Live{provider: p, settings: s}, nil
}

func (l *Live) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// Save writes every key of s and then re-reads the provider, so the
// in-memory copy is exactly what was persisted.
func (l *Live) Save(s Settings) error {
	for _, key := range Keys {
		if err := l.provider.Set(key, s.Value(key)); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
	}
	return l.Reload()
}

// Reload re-reads the provider.
func (l *Live) Reload() error {
	s, err := ReadSettings(l.provider)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()
	return nil
}

// MemoryProvider is a Provider without persistence.
type MemoryProvider struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryProvider(s Settings) *MemoryProvider {
	m := &MemoryProvider{values: make(map[string]string)}
	for _, key := range Keys {
		m.values[key] = s.Value(key)
	}
	return m
}

func (m *MemoryProvider) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryProvider) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
