// Command launchctl is a small harness that spawns launchhelper as a
// subprocess, wires its stdin/stdout into a launcher.Multiplexer as the
// duplex stream, registers one CallerEndpoint, runs a command to
// completion, and prints the observed signal sequence. It is a consumer of
// package launcher, analogous to a QtcProcess-like wrapper — not part of
// the core itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arcflow/launchbridge/internal/config"
	"github.com/arcflow/launchbridge/launcher"
)

func main() {
	cfg := config.DefaultConfig()
	flag.StringVar(&cfg.HelperPath, "helper", cfg.HelperPath, "path to the launchhelper binary")
	flag.StringVar(&cfg.HelperWorkDir, "helper-workdir", cfg.HelperWorkDir, "working directory for the launchhelper subprocess")
	flag.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "how long to watch for an immediate helper connection failure before starting the program")
	flag.DurationVar(&cfg.StartTimeout, "start-timeout", cfg.StartTimeout, "how long to wait for the target process to report started")
	flag.DurationVar(&cfg.FinishTimeout, "finish-timeout", cfg.FinishTimeout, "how long to wait for the target process to finish")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: launchctl [flags] -- <program> [args...]")
		os.Exit(2)
	}

	exitCode, err := run(cfg, args[0], args[1:])
	if err != nil {
		fatal(err)
	}
	os.Exit(exitCode)
}

// pipeConn adapts a spawned helper subprocess's stdin/stdout pipes to the
// io.ReadWriteCloser that Multiplexer.SetConn wants; a Unix domain socket
// or net.Pipe satisfies the same interface, but stdio pipes let the demo
// avoid needing a socket path at all.
type pipeConn struct {
	stdout io.ReadCloser
	stdin  io.WriteCloser
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *pipeConn) Close() error {
	err := c.stdin.Close()
	if cerr := c.stdout.Close(); err == nil {
		err = cerr
	}
	return err
}

func run(cfg config.Config, program string, args []string) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	helperCmd := exec.Command(cfg.HelperPath)
	if cfg.HelperWorkDir != "" {
		helperCmd.Dir = cfg.HelperWorkDir
	}
	helperCmd.Stderr = os.Stderr

	stdin, err := helperCmd.StdinPipe()
	if err != nil {
		return 1, fmt.Errorf("helper stdin pipe: %w", err)
	}
	stdout, err := helperCmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("helper stdout pipe: %w", err)
	}
	if err := helperCmd.Start(); err != nil {
		return 1, fmt.Errorf("start helper: %w", err)
	}

	conn := &pipeConn{stdout: stdout, stdin: stdin}

	mux := launcher.NewMultiplexer()
	sockErr := make(chan error, 1)
	var shuttingDown atomic.Bool
	mux.OnError(func(err error) {
		if !shuttingDown.Load() {
			fmt.Fprintf(os.Stderr, "launchctl: socket error: %v\n", err)
		}
		select {
		case sockErr <- err:
		default:
		}
	})

	runErr := make(chan error, 1)
	go func() { runErr <- mux.Run(ctx) }()
	mux.SetConn(conn)

	// Give the helper a window to announce an immediate connection failure
	// (a broken pipe surfaces as a read/write error on the very first
	// Multiplexer iteration) before committing to Register/Start.
	select {
	case err := <-sockErr:
		return 1, fmt.Errorf("helper connection failed: %w", err)
	case <-time.After(cfg.ConnectTimeout):
	case <-ctx.Done():
		return 1, ctx.Err()
	}

	token := mux.NewToken()
	caller, err := mux.Register(token, launcher.ProcessModeReader)
	if err != nil {
		return 1, fmt.Errorf("register: %w", err)
	}

	caller.OnStarted = func() {
		fmt.Printf("started pid=%d\n", caller.ProcessId())
	}
	caller.OnReadyReadStandardOutput = func() {
		os.Stdout.Write(caller.ReadAllStandardOutput())
	}
	caller.OnReadyReadStandardError = func() {
		os.Stderr.Write(caller.ReadAllStandardError())
	}
	caller.OnErrorOccurred = func(kind launcher.ErrorKind) {
		fmt.Fprintf(os.Stderr, "launchctl: %s: %s\n", kind, caller.ErrorString())
	}
	caller.OnFinished = func(exitCode int32, status launcher.ExitStatus) {
		fmt.Printf("finished exitCode=%d status=%v\n", exitCode, status)
	}

	if err := caller.Start(program, args, nil); err != nil {
		return 1, fmt.Errorf("start process: %w", err)
	}

	if !caller.WaitForStarted(int(cfg.StartTimeout.Milliseconds())) && caller.State() == launcher.Starting {
		return 1, fmt.Errorf("timed out waiting for %s to start", program)
	}

	caller.WaitForFinished(int(cfg.FinishTimeout.Milliseconds()))

	shuttingDown.Store(true)
	mux.Shutdown()
	stop()
	<-runErr

	done := make(chan error, 1)
	go func() { done <- helperCmd.Wait() }()
	select {
	case <-done:
	case <-time.After(cfg.ShutdownTimeout):
		helperCmd.Process.Kill()
		<-done
	}

	if caller.State() != launcher.NotRunning {
		return 1, fmt.Errorf("timed out waiting for %s to finish", program)
	}
	if caller.Error() != "" {
		return 1, fmt.Errorf("%s: %s: %s", program, caller.Error(), caller.ErrorString())
	}
	return int(caller.ExitCode()), nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "launchctl: %v\n", err)
	os.Exit(1)
}
