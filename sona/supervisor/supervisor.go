package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/httpclient"
	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/process"
	"github.com/kbukum/sonago/resilience"
)

const (
	componentName = "sona-server"
	loopbackHost  = "127.0.0.1"
	probeTimeout  = 2 * time.Second
)

// Supervisor owns one server process.
type Supervisor struct {
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	state    State
	binary   string
	proc     *process.Process
	port     int
	launched time.Time
	cancel   context.CancelFunc
	ops      sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger replaces the "supervisor" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithMetrics records launch metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New creates a Supervisor. It has no side effects.
func New(cfg Config, opts ...Option) *Supervisor {
	cfg.ApplyDefaults()
	s := &Supervisor{
		cfg:  cfg,
		log:  logger.Get("supervisor"),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port returns the port reported by the handshake, or 0.
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// BaseURL returns the server address, or "" before the handshake.
func (s *Supervisor) BaseURL() string {
	port := s.Port()
	if port == 0 {
		return ""
	}
	return "http://" + loopbackHost + ":" + strconv.Itoa(port)
}

// PID returns the process id, or 0 before launch.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.PID()
}

// Binary returns the resolved binary path, or "" before Start.
func (s *Supervisor) Binary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binary
}

// Alive reports whether the process was launched and has not been observed
// to exit.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && s.proc.Alive() && !s.state.Terminal()
}

// Done is closed when the supervisor reaches Stopped or Failed.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Start launches the server with --port requestedPort and waits for the
// port handshake. It fails with LAUNCH_FAILED when the binary is missing,
// cannot be executed or exits first, and with STARTUP_TIMEOUT when no
// handshake arrives within StartupTimeout.
func (s *Supervisor) Start(ctx context.Context, requestedPort int) error {
	ctx, end, err := s.begin(ctx, "start", StateNotStarted)
	if err != nil {
		return err
	}
	defer end()

	ctx, span := observability.StartSpan(ctx, observability.SpanLaunch)
	defer span.End()

	binary, err := Discover(s.cfg.BinaryPath)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.mu.Lock()
	s.binary = binary
	s.mu.Unlock()
	span.SetAttributes(attribute.String(observability.AttrBinary, binary))

	if s.cfg.ProbeVersion {
		s.probeVersion(ctx, binary)
	}

	handshake := make(chan int, 1)
	args := append([]string{"serve", "--port", strconv.Itoa(requestedPort)}, s.cfg.Args...)
	proc, err := process.Start(process.Command{
		Binary:      binary,
		Args:        args,
		Env:         s.cfg.Env,
		GracePeriod: s.cfg.GracePeriod,
		OnStdout:    s.stdoutHandler(handshake),
		OnStderr: func(line string) {
			s.log.Debug(line, logger.Fields(logger.FieldStream, "stderr"))
		},
	})
	if err != nil {
		return s.fail(ctx, errors.LaunchFailed(binary, "exec failed").WithCause(err))
	}

	s.mu.Lock()
	s.proc = proc
	s.launched = time.Now()
	s.mu.Unlock()
	span.SetAttributes(attribute.Int(observability.AttrPID, proc.PID()))
	s.log.Info("server launched", logger.Fields(logger.FieldBinary, binary, logger.FieldPID, proc.PID()))

	timer := time.NewTimer(s.cfg.StartupTimeout)
	defer timer.Stop()

	var port int
	select {
	case port = <-handshake:
	case <-proc.Done():
		return s.fail(ctx, exitError(binary, "exited before reporting its port", proc.Exit()))
	case <-timer.C:
		return s.fail(ctx, errors.StartupTimeout("listening", s.cfg.StartupTimeout))
	case <-ctx.Done():
		return s.fail(ctx, s.interrupted(ctx, "listening"))
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	span.SetAttributes(attribute.Int(observability.AttrPort, port))
	s.log.Info("server listening", logger.Fields(logger.FieldPort, port, logger.FieldPID, proc.PID()))

	go s.watch(proc)
	return nil
}

// WaitReady polls GET /health until it answers 2xx. A non-positive timeout
// uses ReadyTimeout. It fails with STARTUP_TIMEOUT when the timeout elapses
// and with LAUNCH_FAILED, carrying the exit code and stderr tail, when the
// process exits first.
func (s *Supervisor) WaitReady(ctx context.Context, timeout time.Duration) error {
	switch s.State() {
	case StateReady:
		return nil
	case StateFailed:
		s.mu.Lock()
		proc, binary := s.proc, s.binary
		s.mu.Unlock()
		if proc != nil && !proc.Alive() {
			return exitError(binary, "exited before becoming ready", proc.Exit())
		}
	}
	ctx, end, err := s.begin(ctx, "wait_ready", StateStarting)
	if err != nil {
		return err
	}
	defer end()

	s.mu.Lock()
	proc, binary, base := s.proc, s.binary, "http://"+loopbackHost+":"+strconv.Itoa(s.port)
	s.mu.Unlock()
	if proc == nil {
		return errors.InvalidState("wait_ready", "starting").WithDetail("reason", "Start has not completed")
	}

	if timeout <= 0 {
		timeout = s.cfg.ReadyTimeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// End polling as soon as the process exits.
	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-pollCtx.Done():
		}
	}()

	probe, err := httpclient.New(httpclient.Config{Name: "sona-health", BaseURL: base, Timeout: probeTimeout})
	if err != nil {
		return s.fail(ctx, errors.Internal(err))
	}
	defer func() { _ = probe.Close(ctx) }()

	attempts := 0
	err = resilience.RetryFunc(pollCtx, resilience.RetryConfig{
		MaxAttempts:    resilience.Unlimited,
		InitialBackoff: s.cfg.PollInterval,
		MaxBackoff:     defaultMaxPoll,
		BackoffFactor:  2,
		Jitter:         0.2,
		RetryIf:        func(error) bool { return true },
	}, func() error {
		attempts++
		_, err := httpclient.Get[map[string]any](probe, pollCtx, "/health")
		return err
	})

	switch {
	case err == nil:
	case !proc.Alive():
		<-proc.Done()
		return s.fail(ctx, exitError(binary, "exited before becoming ready", proc.Exit()))
	case ctx.Err() != nil:
		return s.fail(ctx, s.interrupted(ctx, "ready"))
	default:
		return s.fail(ctx, errors.StartupTimeout("ready", timeout).WithCause(err).WithDetail("attempts", attempts))
	}

	s.mu.Lock()
	if s.state != StateStarting {
		state := s.state
		s.mu.Unlock()
		return errors.InvalidState("wait_ready", state.String())
	}
	s.state = StateReady
	elapsed := time.Since(s.launched)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordLaunch(ctx, "success", elapsed)
	}
	s.log.Info("server ready", logger.Fields(logger.FieldPort, s.Port(), logger.FieldDuration, elapsed.Milliseconds(), "attempts", attempts))
	return nil
}

// Stop terminates the process: SIGTERM to its process group, then SIGKILL
// after GracePeriod. It is idempotent, safe before Start, and cancels an
// in-flight Start or WaitReady. The grace period runs in full even when ctx
// is already done; ctx only bounds waiting on a concurrent Stop.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateNotStarted:
		s.state = StateStopped
		s.mu.Unlock()
		s.finish()
		return nil
	case StateStopped, StateFailed:
		s.mu.Unlock()
		return nil
	case StateStopping:
		s.mu.Unlock()
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	s.state = StateStopping
	cancel := s.cancel
	s.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, observability.SpanStop)
	defer span.End()

	if cancel != nil {
		cancel()
	}
	s.ops.Wait()

	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	var err error
	if proc != nil {
		span.SetAttributes(attribute.Int(observability.AttrPID, proc.PID()))
		if err = proc.Terminate(context.WithoutCancel(ctx), s.cfg.GracePeriod); err != nil {
			observability.SetSpanError(ctx, err)
		}
		exit := proc.Exit()
		s.log.Info("server stopped", logger.Fields(logger.FieldPID, proc.PID(), "exit_code", exit.Code))
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.finish()
	return err
}

// begin registers an in-flight operation that Stop can cancel. It fails
// with INVALID_STATE unless the supervisor is in want.
func (s *Supervisor) begin(ctx context.Context, op string, want State) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != want {
		return nil, nil, errors.InvalidState(op, s.state.String())
	}
	if want == StateNotStarted {
		s.state = StateStarting
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.ops.Add(1)
	return ctx, func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
		s.ops.Done()
	}, nil
}

// fail moves a starting supervisor to Failed, terminating the process. When
// Stop is already tearing down, the process is left to it.
func (s *Supervisor) fail(ctx context.Context, cause error) error {
	observability.SetSpanError(ctx, cause)

	s.mu.Lock()
	switch s.state {
	case StateStopping:
		s.mu.Unlock()
		return errors.InvalidState("start", StateStopping.String()).WithCause(cause)
	case StateFailed:
		s.mu.Unlock()
		return cause
	}
	s.state = StateStopping
	proc, launched := s.proc, s.launched
	s.mu.Unlock()

	s.log.Error("server failed to start", logger.ErrorFields("start", cause))
	if proc != nil {
		if err := proc.Terminate(context.WithoutCancel(ctx), s.cfg.GracePeriod); err != nil {
			s.log.Warn("terminate after failed start", logger.ErrorFields("terminate", err))
		}
	}
	if s.metrics != nil && !launched.IsZero() {
		s.metrics.RecordLaunch(context.WithoutCancel(ctx), "error", time.Since(launched))
	}

	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	s.finish()
	return cause
}

// interrupted reports why ctx ended: Stop, or the caller's deadline.
func (s *Supervisor) interrupted(ctx context.Context, stage string) error {
	if s.State() == StateStopping {
		return errors.InvalidState("start", StateStopping.String()).WithCause(ctx.Err())
	}
	return errors.StartupTimeout(stage, time.Since(s.startedAt())).WithCause(ctx.Err())
}

func (s *Supervisor) startedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// watch marks the supervisor Failed when the process exits on its own.
func (s *Supervisor) watch(proc *process.Process) {
	<-proc.Done()
	s.mu.Lock()
	if s.state != StateStarting && s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.mu.Unlock()

	exit := proc.Exit()
	s.log.Error("server exited unexpectedly", logger.Fields(
		logger.FieldPID, proc.PID(), "exit_code", exit.Code, "stderr", exit.StderrTail))
	s.finish()
}

func (s *Supervisor) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// stdoutHandler delivers the first handshake line to ch and logs the rest.
func (s *Supervisor) stdoutHandler(ch chan<- int) func(string) {
	var once sync.Once
	return func(line string) {
		if port, ok := parseHandshake(line); ok {
			sent := false
			once.Do(func() {
				ch <- port
				sent = true
			})
			if sent {
				return
			}
		}
		s.log.Debug(line, logger.Fields(logger.FieldStream, "stdout"))
	}
}

// parseHandshake extracts the port from a line such as
// {"status":"listening","port":41233}.
func parseHandshake(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return 0, false
	}
	var msg struct {
		Port *int `json:"port"`
	}
	if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Port == nil {
		return 0, false
	}
	if *msg.Port <= 0 || *msg.Port > 65535 {
		return 0, false
	}
	return *msg.Port, true
}

func (s *Supervisor) probeVersion(ctx context.Context, binary string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := process.Run(ctx, process.Command{Binary: binary, Args: []string{"--version"}, Env: s.cfg.Env, GracePeriod: time.Second})
	if err != nil {
		s.log.Debug("version probe failed", logger.ErrorFields("version", err))
		return
	}
	s.log.Info("server version", logger.Fields(logger.FieldBinary, binary, "version", strings.TrimSpace(string(res.Stdout))))
}

func exitError(binary, reason string, exit process.Exit) *errors.AppError {
	return errors.LaunchFailed(binary, fmt.Sprintf("%s (exit code %d)", reason, exit.Code)).
		WithDetail("exit_code", exit.Code).
		WithDetail("stderr", exit.StderrTail)
}
