package sona

import (
	"time"

	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/sona/client"
)

// Option configures Open.
type Option func(*options)

type options struct {
	cfg        Config
	log        *logger.Logger
	metrics    *observability.Metrics
	clientOpts []client.Option
}

// WithConfig replaces the whole configuration. Options applied after it
// still override single fields.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithBinaryPath sets the server executable.
func WithBinaryPath(path string) Option {
	return func(o *options) { o.cfg.Server.BinaryPath = path }
}

// WithPort requests a port. Zero lets the server pick one.
func WithPort(port int) Option {
	return func(o *options) { o.cfg.Server.Port = port }
}

// WithServerArgs appends arguments after "serve --port N".
func WithServerArgs(args ...string) Option {
	return func(o *options) { o.cfg.Server.Args = append(o.cfg.Server.Args, args...) }
}

// WithServerEnv adds KEY=VALUE entries to the server environment.
func WithServerEnv(env ...string) Option {
	return func(o *options) { o.cfg.Server.Env = append(o.cfg.Server.Env, env...) }
}

// WithStartupTimeout bounds both the port handshake and readiness.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.Server.StartupTimeout = d
		o.cfg.Server.ReadyTimeout = d
	}
}

// WithRequestTimeout bounds each non-streaming client call.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.Client.Timeout = d }
}

// WithLogger replaces the session logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records launch and request metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClientOptions passes options to the protocol client.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}
