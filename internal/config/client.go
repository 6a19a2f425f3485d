package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/blackmichael/postboard/internal/domain"
)

const appName = "postboard"

// ClientConfig holds the settings of the postboard command line client.
type ClientConfig struct {
	ServerURL string `toml:"server_url"`
	PageSize  int    `toml:"page_size"`

	// ReenrichInterval refreshes relative post ages while the feed is open.
	// Zero disables it.
	ReenrichInterval Duration `toml:"reenrich_interval"`

	SessionFile string `toml:"session_file"`
	LogFile     string `toml:"log_file"`
}

// Duration is a time.Duration written as a Go duration string in TOML.
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
	return []byte(d.Duration.String()), nil
}

// ConfigDir returns the directory holding the client's config, session and
// log files.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// DefaultClientConfig returns the settings used when no config file exists.
func DefaultClientConfig(dir string) *ClientConfig {
	return &ClientConfig{
		ServerURL:   "http://localhost:3000",
		PageSize:    domain.DefaultPageSize,
		SessionFile: filepath.Join(dir, "session.json"),
		LogFile:     filepath.Join(dir, appName+".log"),
	}
}

// LoadClient reads the TOML file at path on top of the defaults. An empty
// path uses config.toml in ConfigDir. A missing file is not an error.
func LoadClient(path string) (*ClientConfig, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(dir, "config.toml")
	}

	cfg := DefaultClientConfig(dir)
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveClient writes cfg to path, creating parent directories as needed.
func SaveClient(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *ClientConfig) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.PageSize < 1 || c.PageSize > domain.MaxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d", domain.MaxPageSize)
	}
	if c.ReenrichInterval.Duration < 0 {
		return fmt.Errorf("reenrich_interval must not be negative")
	}
	return nil
}
