package langwire

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ServerAdapter abstracts how a language server is reached. It produces
// the two byte streams a Connection runs over and exposes the server's
// process lifecycle. Adapters do not speak the protocol; graceful
// shutdown is the client's job.
type ServerAdapter interface {
	// Start makes the server reachable. Calling Start again after a
	// successful start returns an error.
	Start(ctx context.Context) error

	// Stop terminates the server ungracefully if it is still running
	// and resolves Exited.
	Stop() error

	// Running reports whether the server is currently reachable.
	Running() bool

	// Exited returns a channel that resolves with the server's exit
	// error (nil for a clean exit) once the server is gone.
	Exited() <-chan error

	// Input is the stream the client writes to; bytes go to the server.
	Input() io.Writer

	// Output is the stream the client reads from; bytes come from the
	// server.
	Output() io.Reader
}

// ProcessConfig describes how to launch a language server child process.
type ProcessConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables, merged over the
	// inherited environment.
	Env map[string]string

	// WorkDir is the working directory for the child.
	WorkDir string
}

// ProcessAdapter launches a child process and wires its stdio as the two
// byte streams. The child's stderr is inherited so server logs stay
// visible.
type ProcessAdapter struct {
	mu     sync.Mutex
	config ProcessConfig
	log    zerolog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	running  atomic.Bool
	exitCh   chan error
	exitOnce sync.Once
}

// ProcessOption configures a ProcessAdapter.
type ProcessOption func(*ProcessAdapter)

// WithProcessLogger sets the adapter's logger.
func WithProcessLogger(log zerolog.Logger) ProcessOption {
	return func(a *ProcessAdapter) {
		a.log = log.With().Str("component", "process-adapter").Logger()
	}
}

// NewProcessAdapter creates an adapter for the given process spec. The
// process is not started.
func NewProcessAdapter(config ProcessConfig, opts ...ProcessOption) *ProcessAdapter {
	a := &ProcessAdapter{
		config: config,
		log:    zerolog.Nop(),
		exitCh: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the child process and wires its pipes.
func (a *ProcessAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd != nil {
		return fmt.Errorf("process %s already started", a.config.Command)
	}

	cmd := exec.CommandContext(ctx, a.config.Command, a.config.Args...)
	cmd.Env = os.Environ()
	for k, v := range a.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if a.config.WorkDir != "" {
		cmd.Dir = a.config.WorkDir
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("start %s: %w", a.config.Command, err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.stdout = stdout
	a.running.Store(true)

	a.log.Info().Str("command", a.config.Command).Int("pid", cmd.Process.Pid).Msg("server process started")

	go a.wait()

	return nil
}

// wait forwards the child's exit to the exit channel.
func (a *ProcessAdapter) wait() {
	err := a.cmd.Wait()
	a.running.Store(false)
	if err != nil {
		a.log.Warn().Err(err).Msg("server process exited")
	} else {
		a.log.Debug().Msg("server process exited cleanly")
	}
	a.resolveExit(err)
}

func (a *ProcessAdapter) resolveExit(err error) {
	a.exitOnce.Do(func() {
		a.exitCh <- err
		close(a.exitCh)
	})
}

// Stop kills the process if it is still running and resolves Exited.
func (a *ProcessAdapter) Stop() error {
	a.mu.Lock()
	cmd := a.cmd
	stdin := a.stdin
	stdout := a.stdout
	a.mu.Unlock()

	if cmd == nil {
		// Never started: there is no process whose exit would resolve it.
		a.resolveExit(nil)
		return nil
	}

	if stdin != nil {
		stdin.Close()
	}
	if stdout != nil {
		stdout.Close()
	}

	if cmd != nil && cmd.Process != nil && a.running.Load() {
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill process: %w", err)
		}
	}
	return nil
}

// Running reports whether the child process is alive.
func (a *ProcessAdapter) Running() bool {
	return a.running.Load()
}

// Exited returns the exit-signal channel. The value is the error from
// Wait; inspect it with exec.ExitError for the exit code.
func (a *ProcessAdapter) Exited() <-chan error {
	return a.exitCh
}

// Input returns the child's stdin.
func (a *ProcessAdapter) Input() io.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stdin
}

// Output returns the child's stdout.
func (a *ProcessAdapter) Output() io.Reader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stdout
}

// PipeAdapter connects a client to an in-process server through two
// anonymous pipe pairs. The client side is exposed through the
// ServerAdapter interface; the server side through ServerInput and
// ServerOutput. Useful for tests and embedded servers.
type PipeAdapter struct {
	clientReader *io.PipeReader // server -> client
	serverWriter *io.PipeWriter
	serverReader *io.PipeReader // client -> server
	clientWriter *io.PipeWriter

	running  atomic.Bool
	exitCh   chan error
	exitOnce sync.Once
}

// NewPipeAdapter creates the two pipe pairs.
func NewPipeAdapter() *PipeAdapter {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()
	return &PipeAdapter{
		clientReader: clientReader,
		serverWriter: serverWriter,
		serverReader: serverReader,
		clientWriter: clientWriter,
		exitCh:       make(chan error, 1),
	}
}

// Start marks the adapter running. The pipes exist from construction.
func (a *PipeAdapter) Start(ctx context.Context) error {
	if a.running.Swap(true) {
		return fmt.Errorf("pipe adapter already started")
	}
	return nil
}

// Stop closes all four pipe ends and resolves Exited.
func (a *PipeAdapter) Stop() error {
	if !a.running.Swap(false) {
		a.resolveExit(nil)
		return nil
	}
	a.clientWriter.Close()
	a.serverWriter.Close()
	a.clientReader.Close()
	a.serverReader.Close()
	a.resolveExit(nil)
	return nil
}

func (a *PipeAdapter) resolveExit(err error) {
	a.exitOnce.Do(func() {
		a.exitCh <- err
		close(a.exitCh)
	})
}

// Running reports whether the adapter has been started and not stopped.
func (a *PipeAdapter) Running() bool {
	return a.running.Load()
}

// Exited returns the exit-signal channel.
func (a *PipeAdapter) Exited() <-chan error {
	return a.exitCh
}

// Input is the client-side writer; bytes surface on ServerOutput.
func (a *PipeAdapter) Input() io.Writer {
	return a.clientWriter
}

// Output is the client-side reader; it yields bytes written to
// ServerInput.
func (a *PipeAdapter) Output() io.Reader {
	return a.clientReader
}

// ServerInput is the server-side writer.
func (a *PipeAdapter) ServerInput() io.Writer {
	return a.serverWriter
}

// ServerOutput is the server-side reader.
func (a *PipeAdapter) ServerOutput() io.Reader {
	return a.serverReader
}
