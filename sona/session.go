package sona

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/sonago/component"
	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/sona/client"
	"github.com/kbukum/sonago/sona/supervisor"
	"github.com/kbukum/sonago/transcription"
)

// Session binds one supervised server to one protocol client.
type Session struct {
	id       string
	sup      *supervisor.Supervisor
	client   *client.Client
	registry *component.Registry
	log      *logger.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	cleanup   runtime.Cleanup
}

// Open launches the server, waits until it is ready and binds a client to
// it. On failure the server is stopped and the launch error is returned,
// typically LAUNCH_FAILED or STARTUP_TIMEOUT.
func Open(ctx context.Context, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg.ApplyDefaults()
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := o.log
	if log == nil {
		log = logger.Get("sona")
	}
	log = log.WithFields(logger.Fields(logger.FieldSessionID, id))

	sup := supervisor.New(o.cfg.Server,
		supervisor.WithLogger(logger.Get("supervisor").WithFields(logger.Fields(logger.FieldSessionID, id))),
		supervisor.WithMetrics(o.metrics),
	)
	cc := &clientComponent{
		sup: sup,
		cfg: o.cfg.Client,
		opts: append([]client.Option{
			client.WithSessionID(id),
			client.WithMetrics(o.metrics),
		}, o.clientOpts...),
	}

	registry := component.NewRegistry()
	for _, c := range []component.Component{sup.Component(), cc} {
		if err := registry.Register(c); err != nil {
			return nil, errors.Internal(err)
		}
	}

	ctx = logger.ContextWithSessionID(ctx, id)
	if err := registry.StartAll(ctx); err != nil {
		if stopErr := sup.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			log.Warn("stop after failed open", logger.ErrorFields("stop", stopErr))
		}
		if appErr, ok := errors.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, err
	}

	s := &Session{
		id:       id,
		sup:      sup,
		client:   cc.client,
		registry: registry,
		log:      log,
	}
	s.cleanup = runtime.AddCleanup(s, stopAbandoned, sup)

	log.Info("session opened", logger.Fields(logger.FieldPort, sup.Port(), logger.FieldPID, sup.PID()))
	return s, nil
}

// stopAbandoned stops the server of a Session collected without Close.
func stopAbandoned(sup *supervisor.Supervisor) {
	if err := sup.Stop(context.Background()); err != nil {
		logger.Get("sona").Warn("stop abandoned session", logger.ErrorFields("stop", err))
	}
}

// With opens a session, runs fn and closes the session exactly once, also
// when fn fails or panics. A close error is returned only when fn succeeded.
func With(ctx context.Context, fn func(*Session) error, opts ...Option) (err error) {
	s, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(context.WithoutCancel(ctx)); closeErr != nil {
			if err == nil {
				err = closeErr
			} else {
				s.log.Warn("close after failed run", logger.ErrorFields("close", closeErr))
			}
		}
	}()
	return fn(s)
}

// Close closes the client, then stops the server. It is idempotent; only
// the first call can return an error.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cleanup.Stop()
		err = s.registry.StopAll(ctx)
		s.log.Info("session closed")
	})
	return err
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Alive reports whether the session is open and its server running.
func (s *Session) Alive() bool { return !s.closed.Load() && s.sup.Alive() }

// Port returns the server's port.
func (s *Session) Port() int { return s.sup.Port() }

// BaseURL returns the server address.
func (s *Session) BaseURL() string { return s.sup.BaseURL() }

// PID returns the server process id.
func (s *Session) PID() int { return s.sup.PID() }

// State returns the supervisor state.
func (s *Session) State() supervisor.State { return s.sup.State() }

// Components reports the health of the server and the client.
func (s *Session) Components(ctx context.Context) []component.Health {
	return s.registry.HealthAll(ctx)
}

// Health calls GET /health.
func (s *Session) Health(ctx context.Context) (*client.Status, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.Health(ctx)
}

// Ready calls GET /ready.
func (s *Session) Ready(ctx context.Context) (*client.Status, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.Ready(ctx)
}

// LoadModel loads the model file at path.
func (s *Session) LoadModel(ctx context.Context, path string) (*client.Status, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.LoadModel(ctx, path)
}

// UnloadModel unloads the current model.
func (s *Session) UnloadModel(ctx context.Context) (*client.Status, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.UnloadModel(ctx)
}

// Models lists the loaded models.
func (s *Session) Models(ctx context.Context) (*client.ModelList, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.ListModels(ctx)
}

// Transcribe runs a transcription. See client.Client.Transcribe.
func (s *Session) Transcribe(ctx context.Context, req transcription.Request) (transcription.Result, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.Transcribe(ctx, req)
}

// TranscribeJSON runs a non-streaming JSON transcription.
func (s *Session) TranscribeJSON(ctx context.Context, req transcription.Request) (*transcription.Transcript, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.TranscribeJSON(ctx, req)
}

// TranscribeText runs a non-streaming text, srt or vtt transcription.
func (s *Session) TranscribeText(ctx context.Context, req transcription.Request) (transcription.Text, error) {
	if s.closed.Load() {
		return "", errors.SessionClosed()
	}
	return s.client.TranscribeText(ctx, req)
}

// TranscribeStream runs a streaming transcription.
func (s *Session) TranscribeStream(ctx context.Context, req transcription.Request) (*transcription.Stream, error) {
	if s.closed.Load() {
		return nil, errors.SessionClosed()
	}
	return s.client.TranscribeStream(ctx, req)
}
