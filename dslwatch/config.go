package dslwatch

import "github.com/hazyhaar/dslwatch/dslwatch/internal/config"

// Config types re-exported for cmd and library users.
type (
	Config        = config.Config
	RouterConfig  = config.RouterConfig
	BrowserConfig = config.BrowserConfig
	PollConfig    = config.PollConfig
	HTTPConfig    = config.HTTPConfig
	HistoryConfig = config.HistoryConfig
)

// LoadConfigFile reads a YAML configuration file with defaults and DSLWATCH_*
// overrides applied. An empty path yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// LoadDotEnv loads a .env file into the environment; a missing file is fine.
func LoadDotEnv(path string) error {
	return config.LoadDotEnv(path)
}
