// Package config holds vault configuration: chronicle layout, category
// aliases, lock discipline, and the HTTP server address.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all vault configuration.
type Config struct {
	Vault  VaultConfig  `yaml:"vault"`
	Server ServerConfig `yaml:"server"`
	Lock   LockConfig   `yaml:"lock"`
}

type VaultConfig struct {
	Root string `yaml:"root"` // vault root; chronicle and cache live under it

	// Categories are the recognized top-level chronicle directories.
	Categories []string `yaml:"categories"`

	// Aliases maps alternate category names onto canonical ones. This
	// replaces the filesystem symlinks the vault layout used to rely on;
	// link semantics differ across platforms, a table does not.
	Aliases map[string]string `yaml:"aliases"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type LockConfig struct {
	TimeoutMS int `yaml:"timeout_ms"` // bounded retry window for a file lock
	RetryMS   int `yaml:"retry_ms"`   // delay between acquisition attempts
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Vault: VaultConfig{
			Root:       "", // resolved at runtime via DefaultRoot()
			Categories: []string{"insights", "learnings", "values", "transformations", "events"},
			Aliases: map[string]string{
				"mistakes":   "learnings",
				"principles": "values",
			},
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37917,
		},
		Lock: LockConfig{
			TimeoutMS: 5000,
			RetryMS:   25,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; it just means defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultRoot returns the default vault root: ~/.vault
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".vault"), nil
}

// ChronicleDir returns the directory subtree holding domain-organized records.
func (c *Config) ChronicleDir() string {
	return filepath.Join(c.Vault.Root, "chronicle")
}

// CacheDir returns the directory holding derived index artifacts. Everything
// under it is reconstructible and safe to delete.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Vault.Root, "cache")
}

// SnapshotPath returns the path of the materialized snapshot database.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.CacheDir(), "snapshot.db")
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// ResolveCategory maps a requested category through the alias table and
// verifies it is recognized.
func (c *Config) ResolveCategory(name string) (string, error) {
	if canonical, ok := c.Vault.Aliases[name]; ok {
		name = canonical
	}
	for _, cat := range c.Vault.Categories {
		if cat == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}
