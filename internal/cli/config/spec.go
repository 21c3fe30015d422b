package config

// CLIConfig is the configuration for stablemem-cli.
type CLIConfig struct {
	// Output is the default output format (table, json, yaml).
	Output string `yaml:"output,omitempty"`

	// Current names the active profile.
	Current string `yaml:"current,omitempty"`

	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile stores one server connection.
type Profile struct {
	Server string `yaml:"server"`

	// APIKey is sealed on disk. Use SealAPIKey and OpenAPIKey.
	APIKey string `yaml:"api_key,omitempty"`

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile   string `yaml:"ca_file,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// DefaultServer is used when neither a flag nor a profile names a server.
const DefaultServer = "http://127.0.0.1:5080"

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Output:   "table",
		Profiles: make(map[string]Profile),
	}
}

// CurrentProfile returns the active profile, if any.
func (c *CLIConfig) CurrentProfile() (Profile, bool) {
	if c == nil || c.Current == "" {
		return Profile{}, false
	}
	p, ok := c.Profiles[c.Current]
	return p, ok
}

// SetProfile stores p under name, creating the profile map when needed.
func (c *CLIConfig) SetProfile(name string, p Profile) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]Profile)
	}
	c.Profiles[name] = p
}
