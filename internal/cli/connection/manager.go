package connection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yndnr/stablemem/internal/cli/config"
	"github.com/yndnr/stablemem/internal/infra/tlsroots"
	"github.com/yndnr/stablemem/pkg/token"
)

// Target is a resolved server endpoint with credentials.
type Target struct {
	// Profile is the saved profile the target came from, if any.
	Profile  string
	Server   string
	APIKey   string
	CAFile   string
	Insecure bool
}

// ProfileInfo describes a saved profile without its secret.
type ProfileInfo struct {
	Name           string `json:"name" yaml:"name"`
	Server         string `json:"server" yaml:"server"`
	KeyFingerprint string `json:"key_fingerprint,omitempty" yaml:"key_fingerprint,omitempty"`
	Current        bool   `json:"current" yaml:"current"`
}

// Manager resolves targets from flags and saved profiles.
type Manager struct {
	cfg    *config.CLIConfig
	keyDir string
}

// NewManager creates a manager over cfg. keyDir holds the key that seals
// profile API keys.
func NewManager(cfg *config.CLIConfig, keyDir string) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Manager{cfg: cfg, keyDir: keyDir}
}

// Config returns the managed configuration.
func (m *Manager) Config() *config.CLIConfig {
	return m.cfg
}

// Resolve fills the empty fields of override from the current profile and
// the defaults.
func (m *Manager) Resolve(override Target) (Target, error) {
	t := override
	if p, ok := m.cfg.CurrentProfile(); ok {
		t.Profile = m.cfg.Current
		if t.Server == "" {
			t.Server = p.Server
		}
		if t.APIKey == "" && p.APIKey != "" {
			key, err := config.OpenAPIKey(m.keyDir, m.cfg.Current, p.APIKey)
			if err != nil {
				return Target{}, err
			}
			t.APIKey = key
		}
		if t.CAFile == "" {
			t.CAFile = p.CAFile
		}
		t.Insecure = t.Insecure || p.Insecure
	}
	if t.Server == "" {
		t.Server = config.DefaultServer
	}
	return t, nil
}

// Client builds an HTTP client for t. TLS settings apply to https servers.
func (m *Manager) Client(t Target) (*HTTPClient, error) {
	opts := Options{Server: t.Server, APIKey: t.APIKey}
	if strings.HasPrefix(t.Server, "https://") {
		tlsCfg, err := tlsroots.ClientConfig(t.CAFile, t.Insecure)
		if err != nil {
			return nil, err
		}
		opts.TLS = tlsCfg
	}
	return NewHTTPClient(opts), nil
}

// Connect checks that t answers /health, then saves it as profile name and
// makes it current.
func (m *Manager) Connect(ctx context.Context, name string, t Target) error {
	if name == "" {
		return fmt.Errorf("profile name required")
	}
	client, err := m.Client(t)
	if err != nil {
		return err
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := client.Get(ctx, "/health", &health); err != nil {
		return fmt.Errorf("health check %s: %w", client.Server(), err)
	}

	sealed, err := config.SealAPIKey(m.keyDir, name, t.APIKey)
	if err != nil {
		return err
	}
	m.cfg.SetProfile(name, config.Profile{
		Server:   client.Server(),
		APIKey:   sealed,
		CAFile:   t.CAFile,
		Insecure: t.Insecure,
	})
	m.cfg.Current = name
	return nil
}

// Use makes a saved profile current.
func (m *Manager) Use(name string) error {
	if _, ok := m.cfg.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	m.cfg.Current = name
	return nil
}

// Disconnect clears the current profile. It reports whether one was set.
func (m *Manager) Disconnect() bool {
	was := m.cfg.Current != ""
	m.cfg.Current = ""
	return was
}

// Remove deletes a saved profile.
func (m *Manager) Remove(name string) error {
	if _, ok := m.cfg.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(m.cfg.Profiles, name)
	if m.cfg.Current == name {
		m.cfg.Current = ""
	}
	return nil
}

// Profiles lists saved profiles by name. Keys are shown as fingerprints.
func (m *Manager) Profiles() ([]ProfileInfo, error) {
	names := make([]string, 0, len(m.cfg.Profiles))
	for name := range m.cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProfileInfo, 0, len(names))
	for _, name := range names {
		p := m.cfg.Profiles[name]
		info := ProfileInfo{Name: name, Server: p.Server, Current: name == m.cfg.Current}
		if p.APIKey != "" {
			key, err := config.OpenAPIKey(m.keyDir, name, p.APIKey)
			if err != nil {
				return nil, err
			}
			info.KeyFingerprint = token.Fingerprint(key)
		}
		out = append(out, info)
	}
	return out, nil
}
