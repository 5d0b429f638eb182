package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Process is a handle to a long-running subprocess launched with Start.
// Its stdout and stderr are delivered line by line to the Command callbacks
// and the process is reaped by a background goroutine.
type Process struct {
	cmd   *exec.Cmd
	pid   int
	grace time.Duration
	tail  *tailLines

	done chan struct{}
	exit Exit
}

// Start launches cmd without waiting for it to finish. The process runs in its
// own process group and outlives any context; use Terminate to stop it.
func Start(cmd Command) (*Process, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	c := exec.Command(cmd.Binary, cmd.Args...) //nolint:gosec // dynamic args are the purpose of this package
	prepare(c, cmd)

	size := cmd.StderrTail
	if size <= 0 {
		size = 20
	}
	tail := &tailLines{max: size}
	stderrFn := func(line string) {
		tail.add(line)
		if cmd.OnStderr != nil {
			cmd.OnStderr(line)
		}
	}

	stdout := &lineWriter{fn: cmd.OnStdout}
	stderr := &lineWriter{fn: stderrFn}
	c.Stdout = stdout
	c.Stderr = stderr

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}

	p := &Process{
		cmd:   c,
		pid:   c.Process.Pid,
		grace: cmd.gracePeriod(),
		tail:  tail,
		done:  make(chan struct{}),
	}
	go p.wait(stdout, stderr)
	return p, nil
}

func (p *Process) wait(stdout, stderr *lineWriter) {
	err := p.cmd.Wait()
	stdout.flush()
	stderr.flush()
	p.exit = Exit{
		Code:       p.cmd.ProcessState.ExitCode(),
		Err:        err,
		StderrTail: p.tail.String(),
	}
	close(p.done)
}

// PID returns the operating system process id.
func (p *Process) PID() int { return p.pid }

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive reports whether the process has not yet been observed to exit.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Exit returns the exit status. Only meaningful after Done is closed.
func (p *Process) Exit() Exit {
	<-p.done
	return p.exit
}

// StderrTail returns the most recent stderr lines.
func (p *Process) StderrTail() string { return p.tail.String() }

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) (Exit, error) {
	select {
	case <-p.done:
		return p.exit, nil
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

// Terminate sends SIGTERM to the process group, waits up to grace for it to
// exit, then sends SIGKILL. A non-positive grace uses the Command's
// GracePeriod. A done ctx cuts the grace period short and kills at once.
// Safe to call more than once and after the process has exited.
func (p *Process) Terminate(ctx context.Context, grace time.Duration) error {
	if !p.Alive() {
		return nil
	}
	if grace <= 0 {
		grace = p.grace
	}

	if err := signalGroup(p.pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("process: sigterm %d: %w", p.pid, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}

	if err := signalGroup(p.pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("process: sigkill %d: %w", p.pid, err)
	}
	// SIGKILL cannot be ignored; reaping is bounded by the pipe WaitDelay.
	<-p.done
	return nil
}

// lineWriter splits written bytes into lines and hands each to fn.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(b)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf.Next(i+1)), "\r\n")
		if w.fn != nil {
			w.fn(line)
		}
	}
	return len(b), nil
}

// flush emits a trailing partial line.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return
	}
	line := strings.TrimRight(w.buf.String(), "\r\n")
	w.buf.Reset()
	if w.fn != nil {
		w.fn(line)
	}
}

// tailLines keeps the last max lines.
type tailLines struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *tailLines) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailLines) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
