package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/alm/internal/logging"
)

// Transport modes select how the auth client reaches the API.
const (
	TransportAuto = "auto" // real API, demo session when the server is unreachable
	TransportHTTP = "http" // real API only
	TransportDemo = "demo" // never touch the network for auth
)

// Policies for job statuses the poller does not recognize.
const (
	UnknownStatusContinue = "continue"
	UnknownStatusFail     = "fail"
)

// DefaultAPIURL is used when neither the config file nor ALM_API_URL set one.
const DefaultAPIURL = "http://localhost:8000"

// ClientConfig holds configuration for the alm client and CLI.
type ClientConfig struct {
	APIURL    string        `yaml:"api_url"`    // Base URL of the ALM API
	APIPrefix string        `yaml:"api_prefix"` // Prefix of versioned endpoints (forecast, inference)
	Transport string        `yaml:"transport"`  // auto, http, demo
	Store     string        `yaml:"store"`      // SQLite path, ":memory:" or redis:// URL
	Timeout   time.Duration `yaml:"timeout"`    // HTTP client timeout, 0 for none
	Poll      PollConfig    `yaml:"poll"`
	Log       LogConfig     `yaml:"log"`
}

// PollConfig bounds inference job polling.
type PollConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	Interval      time.Duration `yaml:"interval"`
	UnknownStatus string        `yaml:"unknown_status"`
	Deadline      time.Duration `yaml:"deadline"` // optional wall-clock bound, 0 for none
}

// LogConfig selects the CLI logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:    DefaultAPIURL,
		APIPrefix: "/api/v1",
		Transport: TransportAuto,
		Store:     DefaultStorePath(),
		Poll: PollConfig{
			MaxAttempts:   60,
			Interval:      2 * time.Second,
			UnknownStatus: UnknownStatusContinue,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns ~/.alm, where the config file and session database live.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".alm"
	}
	return filepath.Join(home, ".alm")
}

// DefaultStorePath returns ~/.alm/session.db.
func DefaultStorePath() string {
	return filepath.Join(Dir(), "session.db")
}

// DefaultConfigPath returns ~/.alm/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the YAML file at path (a missing file is fine), applies
// ALM_* environment overrides and validates the result.
func Load(path string) (ClientConfig, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	cfg.Store = expandHome(cfg.Store)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *ClientConfig) applyEnv(getenv func(string) string) error {
	if v := getenv("ALM_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := getenv("ALM_API_PREFIX"); v != "" {
		c.APIPrefix = v
	}
	if v := getenv("ALM_TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}
	if v := getenv("ALM_STORE"); v != "" {
		c.Store = v
	}
	if v := getenv("ALM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("ALM_POLL_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ALM_POLL_MAX_ATTEMPTS: %w", err)
		}
		c.Poll.MaxAttempts = n
	}
	if v := getenv("ALM_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ALM_POLL_INTERVAL: %w", err)
		}
		c.Poll.Interval = d
	}
	return nil
}

// Validate checks the configuration for values the client cannot use.
func (c ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api_url %q: %w", c.APIURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_url %q: want http(s)://host[:port]", c.APIURL)
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("invalid api_prefix %q: must start with /", c.APIPrefix)
	}
	switch c.Transport {
	case TransportAuto, TransportHTTP, TransportDemo:
	default:
		return fmt.Errorf("invalid transport %q: want auto, http or demo", c.Transport)
	}
	if c.Store == "" {
		return errors.New("store must not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("invalid poll.max_attempts %d: must be at least 1", c.Poll.MaxAttempts)
	}
	if c.Poll.Interval < 0 || c.Poll.Deadline < 0 {
		return errors.New("poll durations must not be negative")
	}
	switch c.Poll.UnknownStatus {
	case UnknownStatusContinue, UnknownStatusFail:
	default:
		return fmt.Errorf("invalid poll.unknown_status %q: want continue or fail", c.Poll.UnknownStatus)
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("invalid log.format %q: want text or json", c.Log.Format)
	}
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
