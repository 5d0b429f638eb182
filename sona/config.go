package sona

import (
	"github.com/kbukum/sonago/config"
	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/sona/client"
	"github.com/kbukum/sonago/sona/supervisor"
	"github.com/kbukum/sonago/validation"
)

// ConfigName is the base name of the configuration file and env prefix
// lookup, e.g. sona.yml.
const ConfigName = "sona"

// Config is the full configuration of a Session.
type Config struct {
	config.BaseConfig `yaml:",inline" mapstructure:",squash"`

	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Server        supervisor.Config    `yaml:"server" mapstructure:"server"`
	Client        client.Config        `yaml:"client" mapstructure:"client"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills in zero-value fields of every section.
func (c *Config) ApplyDefaults() {
	c.BaseConfig.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Client.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}
	return validation.Validate(c)
}

// LoadConfig reads sona.yml and .env files, applies environment overrides
// such as SERVER_PORT or SERVER_BINARY_PATH, then defaults, and validates.
func LoadConfig(opts ...config.LoaderOption) (*Config, error) {
	var cfg Config
	if err := config.LoadConfig(ConfigName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
