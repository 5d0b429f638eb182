package sonatest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

// EnvMode selects a misbehavior of RunServer.
const EnvMode = "SONATEST_MODE"

// Modes understood by RunServer.
const (
	// ModeExitEarly exits with code 3 before the port handshake.
	ModeExitEarly = "exit-early"
	// ModeNoHandshake never prints the port handshake.
	ModeNoHandshake = "no-handshake"
	// ModeUnhealthy answers /health with 503.
	ModeUnhealthy = "unhealthy"
	// ModeIgnoreTerm ignores SIGTERM, so only SIGKILL stops it.
	ModeIgnoreTerm = "ignore-term"
	// ModeCrashAfterReady exits shortly after the handshake.
	ModeCrashAfterReady = "crash-after-ready"
)

// Version is printed by RunServer for --version.
const Version = "sona 0.0.0-test"

// RunServer is a minimal server binary: "serve --port N" binds 127.0.0.1:N,
// prints the port handshake on stdout and serves the fake API until SIGTERM
// or SIGINT. It returns the process exit code.
func RunServer(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "--version" {
		fmt.Fprintln(stdout, Version)
		return 0
	}
	if len(args) == 0 || args[0] != "serve" {
		fmt.Fprintln(stderr, "usage: sona serve --port N")
		return 2
	}

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	port := flags.Int("port", 0, "port to listen on, 0 for any")
	model := flags.String("model", "", "model to report as loaded")
	if err := flags.Parse(args[1:]); err != nil {
		return 2
	}

	mode := os.Getenv(EnvMode)
	signals := make(chan os.Signal, 1)
	if mode == ModeIgnoreTerm {
		signal.Ignore(syscall.SIGTERM)
		signal.Notify(signals, syscall.SIGINT)
	} else {
		signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	}

	switch mode {
	case ModeExitEarly:
		fmt.Fprintln(stderr, "error: failed to load libwhisper.so")
		return 3
	case ModeNoHandshake:
		fmt.Fprintln(stdout, "sona: initializing")
		<-signals
		return 0
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
	if err != nil {
		fmt.Fprintf(stderr, "error: listen: %v\n", err)
		return 1
	}

	var opts []Option
	if mode == ModeUnhealthy {
		opts = append(opts, WithHealthStatus(http.StatusServiceUnavailable))
	}
	if *model != "" {
		opts = append(opts, WithModel(*model))
	}
	srv := &http.Server{Handler: New(opts...).Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	fmt.Fprintln(stdout, "sona: server starting")
	fmt.Fprintf(stdout, "{\"status\":\"listening\",\"port\":%d}\n", ln.Addr().(*net.TCPAddr).Port)

	if mode == ModeCrashAfterReady {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprintln(stderr, "fatal: model crashed")
		return 4
	}

	<-signals
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	return 0
}
