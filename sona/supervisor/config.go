package supervisor

import (
	"time"

	"github.com/kbukum/sonago/validation"
)

const (
	defaultStartupTimeout = 30 * time.Second
	defaultReadyTimeout   = 30 * time.Second
	defaultGracePeriod    = 5 * time.Second
	defaultPollInterval   = 50 * time.Millisecond
	defaultMaxPoll        = time.Second
)

// Config configures a Supervisor.
type Config struct {
	// BinaryPath is the server executable. When set it must exist; no other
	// location is searched. See Discover.
	BinaryPath string `yaml:"binary_path" mapstructure:"binary_path"`

	// Port is passed as --port. Zero lets the server pick a free port.
	Port int `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`

	// Args are appended after "serve --port N".
	Args []string `yaml:"args" mapstructure:"args"`

	// Env holds extra KEY=VALUE entries for the child environment.
	Env []string `yaml:"env" mapstructure:"env"`

	// StartupTimeout bounds the wait for the port handshake.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" validate:"gte=0"`

	// ReadyTimeout bounds WaitReady when it is called with a zero timeout.
	ReadyTimeout time.Duration `yaml:"ready_timeout" mapstructure:"ready_timeout" validate:"gte=0"`

	// GracePeriod is the wait between SIGTERM and SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period" validate:"gte=0"`

	// PollInterval is the first readiness backoff; it doubles up to one second.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval" validate:"gte=0"`

	// ProbeVersion runs "<binary> --version" before launching and logs it.
	ProbeVersion bool `yaml:"probe_version" mapstructure:"probe_version"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.StartupTimeout == 0 {
		c.StartupTimeout = defaultStartupTimeout
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
