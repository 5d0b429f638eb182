// Package sona provides a transcription.Provider backed by a local Sona
// server. The server is launched on the first Execute and stopped by Close.
package sona

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/provider"
	session "github.com/kbukum/sonago/sona"
	"github.com/kbukum/sonago/sona/supervisor"
	"github.com/kbukum/sonago/transcription"
)

// ProviderName is the registry name of the provider.
const ProviderName = "sona"

// Provider transcribes through a lazily opened session.
type Provider struct {
	model      string
	binaryPath string
	opts       []session.Option

	mu     sync.Mutex
	sess   *session.Session
	closed bool
}

var (
	_ transcription.Provider = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ provider.Closeable     = (*Provider)(nil)
)

// New creates a provider. When model is set it is loaded right after the
// server starts.
func New(model string, opts ...session.Option) *Provider {
	return &Provider{model: model, opts: opts}
}

// Factory builds a Provider from a config map with the optional keys
// binary_path, port, model and startup_timeout.
func Factory(cfg map[string]any) (transcription.Provider, error) {
	var opts []session.Option
	p := &Provider{}

	if v, ok := cfg["binary_path"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, errors.InvalidInput("binary_path", "must be a string")
		}
		p.binaryPath = s
		opts = append(opts, session.WithBinaryPath(s))
	}
	if v, ok := cfg["port"]; ok {
		port, err := asInt(v)
		if err != nil {
			return nil, errors.InvalidInput("port", err.Error())
		}
		opts = append(opts, session.WithPort(port))
	}
	if v, ok := cfg["model"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, errors.InvalidInput("model", "must be a string")
		}
		p.model = s
	}
	if v, ok := cfg["startup_timeout"]; ok {
		s, _ := v.(string)
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, errors.InvalidInput("startup_timeout", "must be a duration").WithCause(err)
		}
		opts = append(opts, session.WithStartupTimeout(d))
	}

	p.opts = opts
	return p, nil
}

// Register adds the provider factory to reg.
func Register(reg *provider.Registry[transcription.Provider]) {
	reg.RegisterFactory(ProviderName, Factory)
}

func (p *Provider) Name() string { return ProviderName }

// IsAvailable reports whether a running session exists or, before the
// first call, whether the server binary can be found.
func (p *Provider) IsAvailable(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.sess != nil {
		return p.sess.Alive()
	}
	_, err := supervisor.Discover(p.binaryPath)
	return err == nil
}

// Execute transcribes req, opening the session on first use.
func (p *Provider) Execute(ctx context.Context, req transcription.Request) (transcription.Result, error) {
	sess, err := p.session(ctx)
	if err != nil {
		return nil, err
	}
	return sess.Transcribe(ctx, req)
}

// Health reports the session's server health.
func (p *Provider) Health(ctx context.Context) provider.HealthStatus {
	p.mu.Lock()
	sess, closed := p.sess, p.closed
	p.mu.Unlock()

	switch {
	case closed:
		return provider.HealthStatus{Status: provider.StatusUnavailable, Message: "closed"}
	case sess == nil:
		return provider.HealthStatus{Status: provider.StatusDegraded, Message: "server not started"}
	}

	if _, err := sess.Health(ctx); err != nil {
		return provider.HealthStatus{Status: provider.StatusUnavailable, Message: err.Error()}
	}
	details := map[string]any{"port": sess.Port(), "pid": sess.PID()}
	if ready, err := sess.Ready(ctx); err == nil {
		details["model"] = ready.Model
		return provider.HealthStatus{Status: provider.StatusHealthy, Details: details}
	}
	return provider.HealthStatus{Status: provider.StatusDegraded, Message: "no model loaded", Details: details}
}

// Close stops the server, if one was started. Later calls to Execute fail
// with SESSION_CLOSED.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.closed = true
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close(ctx)
}

func (p *Provider) session(ctx context.Context) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.SessionClosed()
	}
	if p.sess != nil && p.sess.Alive() {
		return p.sess, nil
	}
	if p.sess != nil {
		_ = p.sess.Close(ctx)
		p.sess = nil
	}

	sess, err := session.Open(ctx, p.opts...)
	if err != nil {
		return nil, err
	}
	if p.model != "" {
		if _, err := sess.LoadModel(ctx, p.model); err != nil {
			_ = sess.Close(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	p.sess = sess
	return sess, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("must be an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
}
