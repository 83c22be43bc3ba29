package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// runtimeArgv0 is the conventional program name the runtime expects to
	// see as its first argument, regardless of the executable's file name.
	runtimeArgv0 = "beam.smp"

	// exitExecFailed is the exit code reserved by the launch contract for a
	// child whose target executable failed to load.
	exitExecFailed = 127

	// exitSignalOffset maps a terminating signal to the shell convention
	// 128+signal when reporting exit status.
	exitSignalOffset = 128

	defaultReadTimeout    = 100 * time.Millisecond
	defaultReadBufferSize = 4096
)

// State describes where the supervised runtime is in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Logger receives informational diagnostics from the supervisor. *testing.T
// satisfies it directly.
type Logger interface {
	Logf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Logf(string, ...any) {}

// ResourceError reports a pipe or process creation failure at the OS level.
// When Start returns one, no partial state has been retained: both pipe
// pairs are released and the supervisor is unchanged.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("supervisor: %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithReadTimeout bounds how long ReadAvailable waits for output.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithReadBufferSize caps how many bytes a single ReadAvailable returns.
func WithReadBufferSize(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.readBufferSize = n
		}
	}
}

// WithLogger routes informational diagnostics to the provided sink.
func WithLogger(l Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithExtraEnv appends additional KEY=VALUE pairs to the runtime
// environment. The launch contract's own additions (HOME, TERM) are applied
// after these and win on conflict.
func WithExtraEnv(env []string) Option {
	return func(s *Supervisor) {
		s.extraEnv = append([]string(nil), env...)
	}
}

// Supervisor owns at most one runtime process at a time. The zero value is
// not usable; construct instances with New.
type Supervisor struct {
	mu     sync.Mutex
	pid    int
	state  State
	stdin  endpoint // write end of the runtime's input pipe
	stdout endpoint // read end of the runtime's merged output pipe

	readTimeout    time.Duration
	readBufferSize int
	extraEnv       []string
	log            Logger
}

// New constructs a supervisor with no runtime attached.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		readTimeout:    defaultReadTimeout,
		readBufferSize: defaultReadBufferSize,
		log:            nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Argv returns the fixed argument vector the runtime is invoked with: the
// conventional program name, a flag separator, the headless flag and the
// boot expression flag carrying the caller-supplied expression.
func Argv(bootExpression string) []string {
	return []string{runtimeArgv0, "--", "-noshell", "-eval", bootExpression}
}

// LaunchEnv returns the environment additions the launch contract pins: the
// runtime home directory and a minimal non-interactive terminal type.
func LaunchEnv(homeDirectory string) []string {
	return []string{"HOME=" + homeDirectory, "TERM=dumb"}
}

// Start launches the runtime executable with its stdin bound to a pipe the
// supervisor writes and its stdout and stderr merged into a pipe the
// supervisor reads. It returns the new process identifier. If the runtime is
// already running the existing identifier is returned without side effects.
func (s *Supervisor) Start(executablePath, homeDirectory, bootExpression string) (int, error) {
	if executablePath == "" {
		return 0, errors.New("supervisor: executable path is required")
	}
	if homeDirectory == "" {
		return 0, errors.New("supervisor: home directory is required")
	}
	if bootExpression == "" {
		return 0, errors.New("supervisor: boot expression is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.log.Logf("runtime already running with pid %d", s.pid)
		return s.pid, nil
	}

	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return 0, &ResourceError{Op: "create input pipe", Err: err}
	}
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		return 0, &ResourceError{Op: "create output pipe", Err: err}
	}

	cmd := &exec.Cmd{
		Path:   executablePath,
		Args:   Argv(bootExpression),
		Env:    append(append(os.Environ(), s.extraEnv...), LaunchEnv(homeDirectory)...),
		Stdin:  stdinRead,
		Stdout: stdoutWrite,
		Stderr: stdoutWrite, // stderr merges into the same stream as stdout
	}

	if err := cmd.Start(); err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		stdoutRead.Close()
		stdoutWrite.Close()
		return 0, &ResourceError{Op: "spawn " + executablePath, Err: err}
	}

	// The child holds its own copies of these ends now.
	stdinRead.Close()
	stdoutWrite.Close()

	s.pid = cmd.Process.Pid
	s.state = StateRunning
	s.stdin.set(stdinWrite)
	s.stdout.set(stdoutRead)

	// Reaping happens through Wait4, never through cmd.Wait, so drop the
	// process handle immediately.
	cmd.Process.Release()

	s.log.Logf("runtime started with pid %d", s.pid)
	return s.pid, nil
}

// Stop terminates the runtime with SIGTERM and blocks until its exit status
// has been reaped, then releases both retained pipe endpoints. No timeout is
// applied to the wait: a runtime that ignores SIGTERM will hang this call.
// Stop is idempotent and safe when the runtime was never started.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning && s.pid > 0 {
		s.log.Logf("stopping runtime pid %d", s.pid)
		if err := unix.Kill(s.pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
			s.log.Logf("signal runtime pid %d: %v", s.pid, err)
		}
		s.reapLocked(0)
		s.pid = 0
		s.state = StateStopped
	}

	// Endpoints are released unconditionally so repeated Stop calls, or a
	// Stop after an externally observed exit, never leak descriptors.
	s.stdin.close()
	s.stdout.close()
}

// ReadAvailable waits up to the configured timeout for runtime output and
// returns at most one buffer's worth of it. It returns an empty slice when
// nothing arrived in time, when the output endpoint is closed, or when the
// runtime has closed its side of the stream. Errors are reserved for
// exceptional poll or read failures.
func (s *Supervisor) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stdout.open() {
		return nil, nil
	}

	fd := int(s.stdout.file.Fd())
	deadline := time.Now().Add(s.readTimeout)
	for {
		remaining := int(time.Until(deadline).Milliseconds())
		if remaining < 0 {
			remaining = 0
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, remaining)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("supervisor: poll output: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		break
	}

	buf := make([]byte, s.readBufferSize)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("supervisor: read output: %w", err)
		}
		if n <= 0 {
			// The runtime closed its end of the stream.
			return nil, nil
		}
		return buf[:n], nil
	}
}

// WriteLine writes the given text followed by a newline to the runtime's
// input. It is a no-op when the input endpoint is closed. The write loops
// until the whole line is accepted; a broken pipe (runtime already gone but
// not yet observed) degrades to a logged no-op rather than an error.
func (s *Supervisor) WriteLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stdin.open() {
		return nil
	}

	line := append([]byte(text), '\n')
	for len(line) > 0 {
		n, err := s.stdin.file.Write(line)
		line = line[n:]
		if err != nil {
			if errors.Is(err, unix.EPIPE) {
				s.log.Logf("input pipe broken, runtime likely exited")
				return nil
			}
			return fmt.Errorf("supervisor: write input: %w", err)
		}
	}
	return nil
}

// IsAlive reports whether the runtime process is still running. When it has
// exited, the exit is reaped, the tracked identifier is cleared and the
// state moves to Stopped, so subsequent calls answer without OS interaction.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning || s.pid <= 0 {
		return false
	}
	return !s.reapLocked(unix.WNOHANG)
}

// State returns the current lifecycle state without touching the OS.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the tracked process identifier, or zero when no runtime is
// running.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// reapLocked collects the runtime's exit status. With options zero it blocks
// until the child exits; with WNOHANG it returns immediately. It reports
// whether an exit was observed and, if so, clears the tracked identifier.
// Callers must hold s.mu.
func (s *Supervisor) reapLocked(options int) bool {
	var status unix.WaitStatus
	for {
		pid, err := unix.Wait4(s.pid, &status, options, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			// ECHILD means the process is already gone and reaped; treat
			// any wait failure as an observed exit so state self-corrects.
			s.log.Logf("wait for runtime pid %d: %v", s.pid, err)
			s.pid = 0
			s.state = StateStopped
			return true
		case pid == s.pid:
			s.logExit(status)
			s.pid = 0
			s.state = StateStopped
			return true
		default:
			return false
		}
	}
}

func (s *Supervisor) logExit(status unix.WaitStatus) {
	code := status.ExitStatus()
	if status.Signaled() {
		code = exitSignalOffset + int(status.Signal())
	}
	if code == exitExecFailed {
		s.log.Logf("runtime pid %d exited with status %d (executable failed to load)", s.pid, code)
		return
	}
	s.log.Logf("runtime pid %d exited with status %d", s.pid, code)
}
