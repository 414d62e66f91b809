// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"topster/internal/logging"
)

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Bucket configures one cache bucket.
type Bucket struct {
	TTL        Duration `toml:"ttl"`
	MaxEntries int      `toml:"max_entries"`
}

// Cache configures the catalog cache.
type Cache struct {
	Backend string `toml:"backend"` // memory, sqlite or none
	Path    string `toml:"path"`    // sqlite database file
	Search  Bucket `toml:"search"`
	Media   Bucket `toml:"media"`
	Episode Bucket `toml:"episode"`
}

// Retry configures the retry controller for flaky upstream calls.
type Retry struct {
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
}

// Backends holds the per-backend endpoints.
type Backends struct {
	MegaCloudBase    string   `toml:"megacloud_base"`
	RapidKeyURL      string   `toml:"rapid_key_url"`
	RapidFallbackKey string   `toml:"rapid_fallback_key"`
	DecryptAPI       string   `toml:"decrypt_api"`
	StreamSBHosts    []string `toml:"streamsb_hosts"`
}

// Config holds all application configuration.
type Config struct {
	BaseURL      string         `toml:"base_url"`
	Provider     string         `toml:"provider"`
	SubsLanguage string         `toml:"subs_language"`
	Timeout      Duration       `toml:"timeout"`
	Log          logging.Config `toml:"log"`
	Retry        Retry          `toml:"retry"`
	Cache        Cache          `toml:"cache"`
	Backends     Backends       `toml:"backends"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:      "https://flixhq.to",
		Provider:     "Vidcloud",
		SubsLanguage: "english",
		Timeout:      Duration{30 * time.Second},
		Log:          logging.DefaultConfig(),
		Retry: Retry{
			Attempts: 3,
			Delay:    Duration{time.Second},
		},
		Cache: Cache{
			Backend: "sqlite",
			Search:  Bucket{TTL: Duration{10 * time.Minute}, MaxEntries: 50},
			Media:   Bucket{TTL: Duration{30 * time.Minute}, MaxEntries: 100},
			Episode: Bucket{TTL: Duration{60 * time.Minute}, MaxEntries: 200},
		},
		Backends: Backends{
			MegaCloudBase:    "https://megacloud.tv",
			RapidKeyURL:      "https://raw.githubusercontent.com/enimax-anime/key/e4/key.txt",
			RapidFallbackKey: "c1d17096f2ca11b7",
			DecryptAPI:       "https://dec.eatmynerds.live",
			StreamSBHosts: []string{
				"https://streamsss.net/sources50",
				"https://watchsb.com/sources50",
				"https://sbplay2.com/sources48",
			},
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "topster"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "topster"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CachePath returns the default sqlite cache location.
func CachePath() (string, error) {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "topster", "catalog.db"), nil
}

// Load reads the config file at the default path and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path and merges with defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if err := validateHTTPURL("base_url", c.BaseURL); err != nil {
		return err
	}

	validProviders := map[string]bool{
		"vidcloud": true, "upcloud": true, "megacloud": true, "rapidcloud": true, "streamsb": true,
	}
	if !validProviders[strings.ToLower(c.Provider)] {
		return fmt.Errorf("unsupported provider %q (valid: Vidcloud, UpCloud, MegaCloud, RapidCloud, StreamSB)", c.Provider)
	}

	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if c.Retry.Attempts < 1 || c.Retry.Attempts > 10 {
		return fmt.Errorf("retry attempts must be between 1 and 10, got %d", c.Retry.Attempts)
	}
	if c.Retry.Delay.Duration < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	switch c.Cache.Backend {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("unsupported cache backend %q (valid: memory, sqlite, none)", c.Cache.Backend)
	}
	for name, b := range map[string]Bucket{"search": c.Cache.Search, "media": c.Cache.Media, "episode": c.Cache.Episode} {
		if b.TTL.Duration <= 0 || b.MaxEntries <= 0 {
			return fmt.Errorf("cache bucket %s needs a positive ttl and max_entries", name)
		}
	}

	for name, u := range map[string]string{
		"megacloud_base": c.Backends.MegaCloudBase,
		"rapid_key_url":  c.Backends.RapidKeyURL,
		"decrypt_api":    c.Backends.DecryptAPI,
	} {
		if err := validateHTTPURL(name, u); err != nil {
			return err
		}
	}
	if len(c.Backends.StreamSBHosts) == 0 {
		return fmt.Errorf("streamsb_hosts cannot be empty")
	}
	for _, h := range c.Backends.StreamSBHosts {
		if err := validateHTTPURL("streamsb_hosts", h); err != nil {
			return err
		}
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}
