package port

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is checks on the typed errors below.
var (
	ErrProcessUnreachable = errors.New("process unreachable")
	ErrMalformedTable     = errors.New("malformed connection table")
	ErrTimeout            = errors.New("timed out waiting for loopback port")
)

// UnreachableProcessError means the process's descriptor table could not
// be listed: it exited, it never existed, or it belongs to someone else.
type UnreachableProcessError struct {
	PID int
	Err error
}

func (e *UnreachableProcessError) Error() string {
	return fmt.Sprintf("process %d unreachable: %v", e.PID, e.Err)
}

func (e *UnreachableProcessError) Unwrap() error { return e.Err }

func (e *UnreachableProcessError) Is(target error) bool {
	return target == ErrProcessUnreachable
}

// MalformedTableError means the kernel TCP table could not be parsed. This
// points at a format assumption that does not hold on this system.
type MalformedTableError struct {
	PID int
	Err error
}

func (e *MalformedTableError) Error() string {
	return fmt.Sprintf("failed to find localhost tcp entry for process %d: %v", e.PID, e.Err)
}

func (e *MalformedTableError) Unwrap() error { return e.Err }

func (e *MalformedTableError) Is(target error) bool {
	return target == ErrMalformedTable
}

// TimeoutError means no loopback entry belonging to the process appeared
// before the deadline.
type TimeoutError struct {
	PID     int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("failed to find local host port for process %d within %s", e.PID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
