package process

import (
	"io"
	"time"
)

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// Stdin provides input to the process. May be nil.
	Stdin io.Reader
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 5 seconds if zero.
	GracePeriod time.Duration

	// OnStdout receives each stdout line of a process launched with Start.
	// Called from a single goroutine; must not block for long.
	OnStdout func(line string)
	// OnStderr receives each stderr line of a process launched with Start.
	OnStderr func(line string)
	// StderrTail is how many trailing stderr lines Start keeps for
	// diagnostics. Defaults to 20.
	StderrTail int
}

func (c Command) gracePeriod() time.Duration {
	if c.GracePeriod <= 0 {
		return 5 * time.Second
	}
	return c.GracePeriod
}
