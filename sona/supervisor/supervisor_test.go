package supervisor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/sonago/component"
	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/sonatest"
)

const envHelper = "SONA_SUPERVISOR_HELPER"

// TestMain doubles as the fake server binary when re-executed by a test.
func TestMain(m *testing.M) {
	if os.Getenv(envHelper) == "1" {
		os.Exit(sonatest.RunServer(os.Args[1:], os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

func helperConfig(t *testing.T, mode string) Config {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := []string{envHelper + "=1"}
	if mode != "" {
		env = append(env, sonatest.EnvMode+"="+mode)
	}
	return Config{
		BinaryPath:     exe,
		Env:            env,
		StartupTimeout: 10 * time.Second,
		ReadyTimeout:   10 * time.Second,
		GracePeriod:    2 * time.Second,
		PollInterval:   10 * time.Millisecond,
	}
}

func newSupervisor(t *testing.T, cfg Config) *Supervisor {
	t.Helper()
	s := New(cfg)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestSupervisor_Lifecycle(t *testing.T) {
	s := newSupervisor(t, helperConfig(t, ""))
	ctx := context.Background()

	if s.State() != StateNotStarted || s.Alive() || s.Port() != 0 || s.BaseURL() != "" {
		t.Fatal("expected fresh supervisor to be idle")
	}

	if err := s.Start(ctx, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateStarting {
		t.Errorf("expected starting after handshake, got %s", s.State())
	}
	if s.Port() == 0 || s.PID() == 0 {
		t.Fatalf("expected port and pid, got port=%d pid=%d", s.Port(), s.PID())
	}

	if err := s.WaitReady(ctx, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateReady || !s.Alive() {
		t.Fatalf("expected ready and alive, got %s alive=%v", s.State(), s.Alive())
	}

	resp, err := http.Get(s.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", resp.StatusCode)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateStopped || s.Alive() {
		t.Errorf("expected stopped and dead, got %s alive=%v", s.State(), s.Alive())
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second stop: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestSupervisor_StopBeforeStart(t *testing.T) {
	s := New(helperConfig(t, ""))
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
	if err := s.Start(context.Background(), 0); !errors.IsCode(err, errors.ErrCodeInvalidState) {
		t.Errorf("expected INVALID_STATE, got %v", err)
	}
}

func TestSupervisor_StartTwice(t *testing.T) {
	s := newSupervisor(t, helperConfig(t, ""))
	if err := s.Start(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Start(context.Background(), 0); !errors.IsCode(err, errors.ErrCodeInvalidState) {
		t.Errorf("expected INVALID_STATE, got %v", err)
	}
}

func TestSupervisor_MissingBinary(t *testing.T) {
	s := newSupervisor(t, Config{BinaryPath: filepath.Join(t.TempDir(), "sona")})
	err := s.Start(context.Background(), 0)
	if !errors.IsCode(err, errors.ErrCodeLaunchFailed) {
		t.Fatalf("expected LAUNCH_FAILED, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("expected failed, got %s", s.State())
	}
}

func TestSupervisor_ExitBeforeHandshake(t *testing.T) {
	s := newSupervisor(t, helperConfig(t, sonatest.ModeExitEarly))
	err := s.Start(context.Background(), 0)
	if !errors.IsCode(err, errors.ErrCodeLaunchFailed) {
		t.Fatalf("expected LAUNCH_FAILED, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["exit_code"] != 3 {
		t.Errorf("expected exit code 3, got %v", appErr.Details["exit_code"])
	}
	if tail, _ := appErr.Details["stderr"].(string); !strings.Contains(tail, "libwhisper") {
		t.Errorf("expected stderr tail, got %q", tail)
	}
}

func TestSupervisor_HandshakeTimeout(t *testing.T) {
	cfg := helperConfig(t, sonatest.ModeNoHandshake)
	cfg.StartupTimeout = 300 * time.Millisecond
	s := newSupervisor(t, cfg)

	err := s.Start(context.Background(), 0)
	if !errors.IsCode(err, errors.ErrCodeStartupTimeout) {
		t.Fatalf("expected STARTUP_TIMEOUT, got %v", err)
	}
	if s.State() != StateFailed || s.Alive() {
		t.Errorf("expected failed and dead, got %s alive=%v", s.State(), s.Alive())
	}
}

func TestSupervisor_ReadinessTimeout(t *testing.T) {
	s := newSupervisor(t, helperConfig(t, sonatest.ModeUnhealthy))
	if err := s.Start(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.WaitReady(context.Background(), 300*time.Millisecond)
	if !errors.IsCode(err, errors.ErrCodeStartupTimeout) {
		t.Fatalf("expected STARTUP_TIMEOUT, got %v", err)
	}
	if s.Alive() {
		t.Error("expected process to be terminated after readiness failure")
	}
}

func TestSupervisor_ExitWhileWaiting(t *testing.T) {
	cfg := helperConfig(t, sonatest.ModeCrashAfterReady)
	s := newSupervisor(t, cfg)
	if err := s.Start(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-s.Done()

	err := s.WaitReady(context.Background(), 0)
	if !errors.IsCode(err, errors.ErrCodeLaunchFailed) {
		t.Fatalf("expected LAUNCH_FAILED, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["exit_code"] != 4 {
		t.Errorf("expected exit code 4, got %v", appErr.Details["exit_code"])
	}
	if s.State() != StateFailed {
		t.Errorf("expected failed, got %s", s.State())
	}
}

func TestSupervisor_KillAfterGrace(t *testing.T) {
	cfg := helperConfig(t, sonatest.ModeIgnoreTerm)
	cfg.GracePeriod = 200 * time.Millisecond
	s := newSupervisor(t, cfg)

	if err := s.Start(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Now()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.GracePeriod {
		t.Errorf("expected stop to wait the grace period, took %v", elapsed)
	}
	if s.Alive() {
		t.Error("expected process to be killed")
	}
}

func TestSupervisor_StopCancelledContextKeepsGrace(t *testing.T) {
	cfg := helperConfig(t, sonatest.ModeIgnoreTerm)
	cfg.GracePeriod = 300 * time.Millisecond
	s := newSupervisor(t, cfg)

	if err := s.Start(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < cfg.GracePeriod {
		t.Errorf("expected stop to wait the grace period, took %v", elapsed)
	}
	if s.State() != StateStopped || s.Alive() {
		t.Errorf("expected stopped and dead, got %s alive=%v", s.State(), s.Alive())
	}
}

func TestSupervisor_StopDuringStart(t *testing.T) {
	s := newSupervisor(t, helperConfig(t, sonatest.ModeNoHandshake))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background(), 0) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.PID() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Stop(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected Start to be cancelled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if s.State() != StateStopped || s.Alive() {
		t.Errorf("expected stopped and dead, got %s alive=%v", s.State(), s.Alive())
	}
}

func TestSupervisor_Component(t *testing.T) {
	cfg := helperConfig(t, "")
	cfg.ProbeVersion = true
	s := newSupervisor(t, cfg)
	c := s.Component()

	if c.Name() != "sona-server" {
		t.Errorf("unexpected name %q", c.Name())
	}
	if h := c.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := c.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %s (%s)", h.Status, h.Message)
	}
	desc := c.(component.Describable).Describe()
	if desc.Port != s.Port() || desc.Details != cfg.BinaryPath {
		t.Errorf("unexpected description %+v", desc)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseHandshake(t *testing.T) {
	tests := []struct {
		line string
		port int
		ok   bool
	}{
		{`{"status":"listening","port":41233}`, 41233, true},
		{`  {"port":8080}  `, 8080, true},
		{`sona: server starting`, 0, false},
		{`{"status":"listening"}`, 0, false},
		{`{"port":"8080"}`, 0, false},
		{`{"port":0}`, 0, false},
		{`{"port":70000}`, 0, false},
		{`{broken`, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			port, ok := parseHandshake(tc.line)
			if port != tc.port || ok != tc.ok {
				t.Errorf("parseHandshake(%q) = %d, %v; want %d, %v", tc.line, port, ok, tc.port, tc.ok)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "sona-custom")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("explicit", func(t *testing.T) {
		got, err := Discover(bin)
		if err != nil || got != bin {
			t.Errorf("Discover(explicit) = %q, %v", got, err)
		}
	})

	t.Run("explicit missing does not fall back", func(t *testing.T) {
		t.Setenv(EnvBinaryPath, bin)
		_, err := Discover(filepath.Join(dir, "nope"))
		if !errors.IsCode(err, errors.ErrCodeLaunchFailed) {
			t.Errorf("expected LAUNCH_FAILED, got %v", err)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv(EnvBinaryPath, bin)
		got, err := Discover("")
		if err != nil || got != bin {
			t.Errorf("Discover(env) = %q, %v", got, err)
		}
	})

	t.Run("not found lists searched paths", func(t *testing.T) {
		t.Setenv(EnvBinaryPath, filepath.Join(dir, "missing"))
		t.Setenv("PATH", dir)
		_, err := Discover("")
		if !errors.IsCode(err, errors.ErrCodeLaunchFailed) {
			t.Fatalf("expected LAUNCH_FAILED, got %v", err)
		}
		appErr, _ := errors.AsAppError(err)
		searched, _ := appErr.Details["searched"].([]string)
		if len(searched) < 2 || searched[0] != filepath.Join(dir, "missing") {
			t.Errorf("unexpected searched list %v", searched)
		}
	})
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.StartupTimeout != 30*time.Second || cfg.GracePeriod != 5*time.Second || cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := (&Config{Port: 70000}).Validate(); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for port 70000, got %v", err)
	}
}
