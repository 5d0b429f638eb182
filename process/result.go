package process

import "time"

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte
	// Stderr is the captured standard error.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
}

// Exit describes how a long-running process ended.
type Exit struct {
	// Code is the exit code, -1 when terminated by a signal.
	Code int
	// Err is the error reported by Wait, nil on a clean zero exit.
	Err error
	// StderrTail holds the last stderr lines written before exit.
	StderrTail string
}
