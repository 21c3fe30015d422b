package confloader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "STABLEMEM_"

// Loader layers the config file, the environment and command-line
// overrides over a target struct.
type Loader struct {
	mu        sync.Mutex
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets values that win over every other source. Keys are
// dotted config keys such as storage.data_dir.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every source into a fresh koanf instance and unmarshals the
// result into target. Fields no source sets keep their value in target,
// so callers pass a struct already holding the defaults.
//
// Later sources win: the YAML file, then the environment, then overrides.
// Load may be called again after the file changes.
func (l *Loader) Load(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := koanf.New(".")

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	prefix := l.envPrefix
	envProvider := env.Provider(prefix, ".", func(s string) string {
		return EnvKey(prefix, s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := k.Load(overrideProvider(l.overrides), nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// EnvKey converts an environment variable name into a config key.
//
// Names without a double underscore map every underscore to a dot:
// STABLEMEM_LOG_LEVEL -> log.level. Names containing "__" use it as the
// only separator so keys may keep their underscores:
// STABLEMEM_STORAGE__MAX_PAGES -> storage.max_pages.
func EnvKey(prefix, name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	if strings.Contains(s, "__") {
		return strings.ReplaceAll(s, "__", ".")
	}
	return strings.ReplaceAll(s, "_", ".")
}

// FilePath returns the configuration file path, if any.
func (l *Loader) FilePath() string {
	return l.filePath
}
