package client

import (
	"time"

	"github.com/kbukum/sonago/validation"
)

// Config configures a Client.
type Config struct {
	// BaseURL of the server, e.g. http://127.0.0.1:41233. Set by the session
	// from the discovered port when empty.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,http_url"`

	// Timeout bounds each non-streaming call. Zero means no client deadline;
	// the caller's context still applies. Transcriptions of long audio can
	// take minutes.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`

	// ServiceName labels spans and metrics.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "sona"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

func (c *Config) adapterTimeout() time.Duration {
	if c.Timeout <= 0 {
		return -1
	}
	return c.Timeout
}
