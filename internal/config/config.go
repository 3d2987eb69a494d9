// Package config loads pad-chat settings from a TOML file with environment
// overrides and built-in defaults.
//
// Lookup order for the file: the --config flag, then ~/.pad-chat/config.toml.
// A missing file means defaults; a malformed one is an error.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DirName  = ".pad-chat"
	FileName = "config.toml"
)

type Config struct {
	Client  ClientConfig  `toml:"client"`
	Storage StorageConfig `toml:"storage"`
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Log     LogConfig     `toml:"log"`
}

// ClientConfig points the chat client at a generation endpoint.
type ClientConfig struct {
	Endpoint string   `toml:"endpoint"`
	Timeout  Duration `toml:"timeout"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "bolt".
	Driver string `toml:"driver"`
	// Path of the database file holding chat history and the theme.
	Path string `toml:"path"`
}

// ServerConfig is the browser API server.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	StaticDir string `toml:"static_dir"`
}

// BackendConfig is the reference generation endpoint served by `padi backend`.
type BackendConfig struct {
	Addr         string `toml:"addr"`
	BaseURL      string `toml:"base_url"`
	Model        string `toml:"model"`
	Token        string `toml:"token"`
	SystemPrompt string `toml:"system_prompt"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration decodes TOML strings such as "90s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Endpoint: "http://localhost:8000/query",
			Timeout:  Duration{2 * time.Minute},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(defaultDir(), "pad-chat.db"),
		},
		Server: ServerConfig{
			Addr:      ":8100",
			StaticDir: "web",
		},
		Backend: BackendConfig{
			Addr:    ":8000",
			BaseURL: "http://localhost:11434/v1/",
			Model:   "llama3.1:8b",
			Token:   "fake",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.pad-chat/config.toml.
func DefaultPath() string {
	return filepath.Join(defaultDir(), FileName)
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// Load reads path (DefaultPath when empty), applies environment overrides,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := &Config{}
	if err := LoadTOML(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the file at path into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides lets environment variables take precedence over the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PADCHAT_ENDPOINT"); v != "" {
		c.Client.Endpoint = v
	}
	if v := os.Getenv("PADCHAT_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("PADCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PADCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("PADCHAT_LLM_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("PADCHAT_LLM_MODEL"); v != "" {
		c.Backend.Model = v
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Client.Endpoint == "" {
		c.Client.Endpoint = d.Client.Endpoint
	}
	if c.Client.Timeout.Duration == 0 {
		c.Client.Timeout = d.Client.Timeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = d.Server.StaticDir
	}
	if c.Backend.Addr == "" {
		c.Backend.Addr = d.Backend.Addr
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = d.Backend.BaseURL
	}
	if c.Backend.Model == "" {
		c.Backend.Model = d.Backend.Model
	}
	if c.Backend.Token == "" {
		c.Backend.Token = d.Backend.Token
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

func (c *Config) Validate() error {
	var errs []error

	if err := validateURL("client.endpoint", c.Client.Endpoint); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("backend.base_url", c.Backend.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "bolt" {
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or bolt, got %q", c.Storage.Driver))
	}
	if c.Client.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("client.timeout must not be negative, got %s", c.Client.Timeout))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", field, raw)
	}
	return nil
}
