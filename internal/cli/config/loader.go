package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/stablemem/pkg/crypto/adaptive"
	"github.com/yndnr/stablemem/pkg/token"
)

const (
	dirName     = ".stablemem"
	fileName    = "cli.yaml"
	keyFileName = "cli.key"
)

// DefaultDir returns ~/.stablemem, or .stablemem when no home is known.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), fileName)
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	if cfg.Current != "" {
		if _, ok := cfg.Profiles[cfg.Current]; !ok {
			return nil, fmt.Errorf("%s: current profile %q is not defined", path, cfg.Current)
		}
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions. The file is replaced
// atomically.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// SealAPIKey encrypts apiKey for the named profile with the key stored in
// dir, creating that key on first use.
func SealAPIKey(dir, profile, apiKey string) (string, error) {
	if apiKey == "" {
		return "", nil
	}
	key, err := loadOrCreateKey(dir)
	if err != nil {
		return "", err
	}
	return adaptive.Seal(key, []byte(apiKey), []byte(profile))
}

// OpenAPIKey decrypts a sealed API key. Values that were never sealed, such
// as keys edited into the file by hand, are returned unchanged.
func OpenAPIKey(dir, profile, sealed string) (string, error) {
	if sealed == "" || !adaptive.IsSealed(sealed) {
		return sealed, nil
	}
	key, err := os.ReadFile(filepath.Join(dir, keyFileName))
	if err != nil {
		return "", fmt.Errorf("read profile key: %w", err)
	}
	plain, err := adaptive.Open(key, sealed, []byte(profile))
	if err != nil {
		return "", fmt.Errorf("profile %q: %w", profile, err)
	}
	return string(plain), nil
}

func loadOrCreateKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, keyFileName)
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != adaptive.KeySize {
			return nil, fmt.Errorf("%s: key must be %d bytes", path, adaptive.KeySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	key, err = token.RandomBytes(adaptive.KeySize)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
