// Package launcher starts a helper process on a free loopback port and
// finds out which port it got.
//
// The helper (typically a WebDriver server such as chromedriver) is passed
// a "pick any port" argument and prints nothing machine-readable about the
// result. Launch therefore spawns it and hands its pid to port.Resolver,
// which watches /proc until the helper's loopback socket appears.
//
// A Helper owns the child process. Close kills and reaps it; callers should
// always defer it.
package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/mmr-tortoise/portprobe/internal/port"
)

const (
	// DefaultBinary is the helper started when none is configured.
	DefaultBinary = "chromedriver"

	// DefaultPortArg tells the helper to bind any free port.
	DefaultPortArg = "--port=0"
)

// LaunchError means the helper binary could not be started at all.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch `%s` instance: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Launcher holds the configuration for starting one kind of helper.
type Launcher struct {
	binary     string
	args       []string
	env        []string
	portArg    string
	timeout    time.Duration
	output     io.Writer
	resolver   *port.Resolver
	readyCheck bool
	logger     *slog.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithArgs sets extra helper arguments, placed before the port argument.
func WithArgs(args ...string) Option {
	return func(l *Launcher) {
		l.args = slices.Clone(args)
	}
}

// WithEnv adds KEY=VALUE pairs to the helper's environment, on top of the
// launcher's own environment.
func WithEnv(env ...string) Option {
	return func(l *Launcher) {
		l.env = append(l.env, env...)
	}
}

// WithPortArg sets the argument that makes the helper pick a free port.
// An empty string passes no port argument.
func WithPortArg(arg string) Option {
	return func(l *Launcher) {
		l.portArg = arg
	}
}

// WithTimeout bounds port discovery and the readiness check. Non-positive
// values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithOutput receives the helper's stdout and stderr. By default both go to
// the null device.
func WithOutput(w io.Writer) Option {
	return func(l *Launcher) {
		l.output = w
	}
}

// WithResolver replaces the port resolver. When set, its own timeout
// applies to discovery.
func WithResolver(r *port.Resolver) Option {
	return func(l *Launcher) {
		l.resolver = r
	}
}

// WithReadyCheck makes Launch wait until the discovered port accepts TCP
// connections before returning.
func WithReadyCheck(enabled bool) Option {
	return func(l *Launcher) {
		l.readyCheck = enabled
	}
}

// WithLogger sets the logger. nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Launcher for binary. An empty binary means DefaultBinary.
func New(binary string, opts ...Option) *Launcher {
	if binary == "" {
		binary = DefaultBinary
	}
	l := &Launcher{
		binary:  binary,
		portArg: DefaultPortArg,
		timeout: port.DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Args returns the full argument list passed to the helper.
func (l *Launcher) Args() []string {
	args := slices.Clone(l.args)
	if l.portArg != "" {
		args = append(args, l.portArg)
	}
	return args
}

// Launch starts the helper and waits until its loopback port is known.
//
// On any failure after the process started, the process is killed and
// reaped before Launch returns.
func (l *Launcher) Launch(ctx context.Context) (*Helper, error) {
	cmd := exec.Command(l.binary, l.Args()...)
	if l.output != nil {
		cmd.Stdout = l.output
		cmd.Stderr = l.output
	}
	if len(l.env) > 0 {
		cmd.Env = append(os.Environ(), l.env...)
	}
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Binary: l.binary, Err: err}
	}
	h := newHelper(cmd)
	l.logger.Debug("started helper", "binary", l.binary, "args", l.Args(), "pid", h.PID())

	resolver := l.resolver
	if resolver == nil {
		resolver = port.NewResolver(port.WithTimeout(l.timeout), port.WithLogger(l.logger))
	}
	p, err := resolver.Resolve(ctx, h.PID())
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("find port of `%s` (pid %d): %w", l.binary, h.PID(), err)
	}
	h.port = p
	l.logger.Debug("helper bound port", "pid", h.PID(), "addr", h.Addr())

	if l.readyCheck {
		if err := port.NewScanner(0).WaitListening(ctx, h.Addr(), l.timeout); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	return h, nil
}
