package port

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/mmr-tortoise/portprobe/internal/model"
	"github.com/mmr-tortoise/portprobe/internal/procfs"
)

const (
	// DefaultTimeout bounds how long Resolve waits for the port to appear.
	DefaultTimeout = 30 * time.Second

	// DefaultPollInterval is the pause between two scans. Reading both proc
	// views costs far less than this, so latency stays close to the moment
	// the helper binds.
	DefaultPollInterval = time.Millisecond

	// progressEvery controls how often a still-searching resolve logs.
	progressEvery = 1000
)

// errNoMatch marks an iteration that found no qualifying entry. It is the
// only error the polling loop retries.
var errNoMatch = errors.New("no loopback entry yet")

// Resolver finds the loopback port a process is bound to.
//
// A Resolver holds no state between calls and may be shared.
type Resolver struct {
	fs       procfs.FS
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFS sets the proc mount to read from.
func WithFS(fsys procfs.FS) Option {
	return func(r *Resolver) {
		r.fs = fsys
	}
}

// WithTimeout sets the overall deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPollInterval sets the pause between scans. Non-positive values are
// ignored.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger. nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver reading /proc with DefaultTimeout and
// DefaultPollInterval.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		timeout:  DefaultTimeout,
		interval: DefaultPollInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the configured deadline.
func (r *Resolver) Timeout() time.Duration {
	return r.timeout
}

// Resolve is shorthand for NewResolver(WithTimeout(timeout)).Resolve.
func Resolve(ctx context.Context, pid int, timeout time.Duration) (uint16, error) {
	return NewResolver(WithTimeout(timeout)).Resolve(ctx, pid)
}

// Resolve polls until pid has a socket bound to 127.0.0.1 and returns its
// port.
//
// It blocks for at most the configured timeout. An unreachable process or
// a malformed connection table ends the search immediately. If ctx is
// cancelled first, ctx.Err() is returned.
func (r *Resolver) Resolve(ctx context.Context, pid int) (uint16, error) {
	if pid <= 0 {
		return 0, &UnreachableProcessError{PID: pid, Err: procfs.ErrInvalidPID}
	}

	start := time.Now()
	deadline, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	attempts := 0
	port, err := retry.NewWithData[uint16](
		retry.Context(deadline),
		retry.UntilSucceeded(),
		retry.Delay(r.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, _ error) {
			if n > 0 && n%progressEvery == 0 {
				r.logger.Debug("still waiting for loopback port",
					"pid", pid, "attempts", n, "elapsed", time.Since(start))
			}
		}),
	).Do(func() (uint16, error) {
		attempts++
		return r.attempt(pid)
	})
	if err == nil {
		r.logger.Debug("resolved loopback port",
			"pid", pid, "port", port, "attempts", attempts, "elapsed", time.Since(start))
		return port, nil
	}

	var unreachable *UnreachableProcessError
	var malformed *MalformedTableError
	switch {
	case errors.As(err, &unreachable):
		return 0, unreachable
	case errors.As(err, &malformed):
		return 0, malformed
	case ctx.Err() != nil:
		return 0, ctx.Err()
	default:
		r.logger.Debug("gave up waiting for loopback port",
			"pid", pid, "attempts", attempts, "timeout", r.timeout)
		return 0, &TimeoutError{PID: pid, Timeout: r.timeout}
	}
}

// attempt runs one poll iteration. Fatal errors are marked unrecoverable so
// the retry loop stops.
func (r *Resolver) attempt(pid int) (uint16, error) {
	var found *model.ConnectionEntry
	err := r.scan(pid, func(e model.ConnectionEntry) bool {
		if model.IsLoopback(e.LocalAddr) {
			found = &e
			return false
		}
		return true
	})
	if err != nil {
		return 0, retry.Unrecoverable(err)
	}
	if found == nil {
		return 0, errNoMatch
	}
	return found.LocalPort, nil
}

// Snapshot returns every connection table entry attributable to pid, in
// table order. It reads each view once and does not poll.
func (r *Resolver) Snapshot(pid int) ([]model.ConnectionEntry, error) {
	if pid <= 0 {
		return nil, &UnreachableProcessError{PID: pid, Err: procfs.ErrInvalidPID}
	}
	var entries []model.ConnectionEntry
	err := r.scan(pid, func(e model.ConnectionEntry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// scan reads a fresh inode set and a fresh connection table and calls visit
// for every entry attributable to pid until visit returns false. A parse
// error seen before visit stops the scan ends it with a MalformedTableError.
func (r *Resolver) scan(pid int, visit func(model.ConnectionEntry) bool) error {
	inodes, err := r.fs.InodeSet(pid)
	if err != nil {
		return &UnreachableProcessError{PID: pid, Err: err}
	}

	table, err := r.fs.TCPTable(pid)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return &UnreachableProcessError{PID: pid, Err: err}
		}
		return &MalformedTableError{PID: pid, Err: err}
	}
	defer func() { _ = table.Close() }()

	for entry, err := range table.Entries() {
		if err != nil {
			return &MalformedTableError{PID: pid, Err: err}
		}
		if !inodes.Attributes(entry) {
			continue
		}
		if !visit(entry) {
			return nil
		}
	}
	return nil
}
