// CLAUDE:SUMMARY dslwatch configuration: YAML file with defaults, .env loading and DSLWATCH_* overrides.
// Package config handles dslwatch configuration from a YAML file, a .env
// file and DSLWATCH_* environment variables, in that order of precedence
// (env wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Disabled turns off an optional listener or store when used as its address.
const Disabled = "off"

// Config is the top-level dslwatch configuration.
type Config struct {
	Router       RouterConfig  `yaml:"router"`
	Browser      BrowserConfig `yaml:"browser"`
	Poll         PollConfig    `yaml:"poll"`
	AdaptersFile string        `yaml:"adapters_file"`
	HTTP         HTTPConfig    `yaml:"http"`
	History      HistoryConfig `yaml:"history"`
	LogLevel     string        `yaml:"log_level"` // debug | info | warn | error
}

// RouterConfig locates the device and its commands.
type RouterConfig struct {
	URL         string        `yaml:"url"`
	RCIPath     string        `yaml:"rci_path"`
	Timeout     time.Duration `yaml:"timeout"`
	ReadCommand string        `yaml:"read_command"`
	Interface   string        `yaml:"interface"`
}

// BrowserConfig controls how the console tab is reached.
type BrowserConfig struct {
	// Remote is a DevTools endpoint (ws://... or http://host:9222) of a
	// browser the user already runs. Empty launches a local Chrome.
	Remote         string        `yaml:"remote"`
	Bin            string        `yaml:"bin"`
	UserDataDir    string        `yaml:"user_data_dir"`
	Headless       bool          `yaml:"headless"`
	Stealth        bool          `yaml:"stealth"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// PollConfig sets the two loop cadences and the reset pause.
type PollConfig struct {
	Detect     time.Duration `yaml:"detect"`
	Update     time.Duration `yaml:"update"`
	ResetDelay time.Duration `yaml:"reset_delay"`
}

// HTTPConfig controls the status API.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// HistoryConfig controls the sample store.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file. An empty path yields defaults.
// Environment overrides are applied last.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Router.URL == "" {
		c.Router.URL = "http://192.168.1.1"
	}
	if c.Router.RCIPath == "" {
		c.Router.RCIPath = "/rci/"
	}
	if c.Router.Timeout <= 0 {
		c.Router.Timeout = 10 * time.Second
	}
	if c.Router.ReadCommand == "" {
		c.Router.ReadCommand = "more proc:/driver/ensoc_dsl/dsl_stats"
	}
	if c.Router.Interface == "" {
		c.Router.Interface = "Dsl0"
	}
	if c.Browser.HealthInterval <= 0 {
		c.Browser.HealthInterval = 30 * time.Second
	}
	if c.Poll.Detect <= 0 {
		c.Poll.Detect = 500 * time.Millisecond
	}
	if c.Poll.Update <= 0 {
		c.Poll.Update = 5 * time.Second
	}
	if c.Poll.ResetDelay <= 0 {
		c.Poll.ResetDelay = time.Second
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = "127.0.0.1:9470"
	}
	if c.History.Path == "" {
		c.History.Path = "data/dslwatch.db"
	}
	if c.History.Retention <= 0 {
		c.History.Retention = 7 * 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnv overlays DSLWATCH_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DSLWATCH_ROUTER_URL":     &c.Router.URL,
		"DSLWATCH_READ_COMMAND":   &c.Router.ReadCommand,
		"DSLWATCH_INTERFACE":      &c.Router.Interface,
		"DSLWATCH_BROWSER_REMOTE": &c.Browser.Remote,
		"DSLWATCH_BROWSER_BIN":    &c.Browser.Bin,
		"DSLWATCH_USER_DATA_DIR":  &c.Browser.UserDataDir,
		"DSLWATCH_ADAPTERS_FILE":  &c.AdaptersFile,
		"DSLWATCH_HTTP_LISTEN":    &c.HTTP.Listen,
		"DSLWATCH_HISTORY_PATH":   &c.History.Path,
		"DSLWATCH_LOG_LEVEL":      &c.LogLevel,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	dur := map[string]*time.Duration{
		"DSLWATCH_POLL_DETECT":       &c.Poll.Detect,
		"DSLWATCH_POLL_UPDATE":       &c.Poll.Update,
		"DSLWATCH_RESET_DELAY":       &c.Poll.ResetDelay,
		"DSLWATCH_ROUTER_TIMEOUT":    &c.Router.Timeout,
		"DSLWATCH_HISTORY_RETENTION": &c.History.Retention,
	}
	for key, dst := range dur {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
	}

	boolean := map[string]*bool{
		"DSLWATCH_BROWSER_HEADLESS": &c.Browser.Headless,
		"DSLWATCH_BROWSER_STEALTH":  &c.Browser.Stealth,
	}
	for key, dst := range boolean {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Router.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: router.url %q must be an absolute URL", c.Router.URL)
	}
	if c.Poll.Update < c.Poll.Detect {
		return fmt.Errorf("config: poll.update (%s) must not be shorter than poll.detect (%s)", c.Poll.Update, c.Poll.Detect)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// HTTPEnabled reports whether the status API should listen.
func (c *Config) HTTPEnabled() bool { return c.HTTP.Listen != Disabled }

// HistoryEnabled reports whether samples are stored.
func (c *Config) HistoryEnabled() bool { return c.History.Path != Disabled }
