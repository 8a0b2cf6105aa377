// Package model defines the domain types for the portprobe CLI.
//
// All entities in this package are ephemeral snapshots of kernel state.
// A ConnectionEntry is one row of the TCP connection table and an InodeSet
// is the set of socket inodes a process holds at the moment it was read.
// Both are rebuilt on every poll iteration and never cached, because the
// kernel may change them at any time between two reads.
package model

import (
	"fmt"
	"net/netip"
	"strings"
)

// TCPState is the kernel's TCP connection state as written in the "st"
// column of /proc/net/tcp. Values follow include/net/tcp_states.h.
//
// The port resolver never filters on state: a helper that has called
// bind(2) but not yet listen(2) is already attributable.
type TCPState uint8

const (
	StateEstablished TCPState = 0x01
	StateSynSent     TCPState = 0x02
	StateSynRecv     TCPState = 0x03
	StateFinWait1    TCPState = 0x04
	StateFinWait2    TCPState = 0x05
	StateTimeWait    TCPState = 0x06
	StateClose       TCPState = 0x07
	StateCloseWait   TCPState = 0x08
	StateLastAck     TCPState = 0x09
	StateListen      TCPState = 0x0A
	StateClosing     TCPState = 0x0B
	StateNewSynRecv  TCPState = 0x0C
)

var stateNames = map[TCPState]string{
	StateEstablished: "ESTABLISHED",
	StateSynSent:     "SYN_SENT",
	StateSynRecv:     "SYN_RECV",
	StateFinWait1:    "FIN_WAIT1",
	StateFinWait2:    "FIN_WAIT2",
	StateTimeWait:    "TIME_WAIT",
	StateClose:       "CLOSE",
	StateCloseWait:   "CLOSE_WAIT",
	StateLastAck:     "LAST_ACK",
	StateListen:      "LISTEN",
	StateClosing:     "CLOSING",
	StateNewSynRecv:  "NEW_SYN_RECV",
}

// String returns the conventional netstat name of the state.
// Unknown values render as "UNKNOWN(0xNN)" so they stay visible in output.
func (s TCPState) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
	}
	return stateNames[s]
}

// IsValid reports whether the state is one the kernel defines.
func (s TCPState) IsValid() bool {
	_, ok := stateNames[s]
	return ok
}

// MarshalText renders the state by name, so JSON output carries
// "LISTEN" rather than 10.
func (s TCPState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseTCPState converts a state name (case insensitive) to a TCPState.
func ParseTCPState(name string) (TCPState, error) {
	upper := strings.ToUpper(name)
	for state, n := range stateNames {
		if n == upper {
			return state, nil
		}
	}
	return 0, fmt.Errorf("invalid tcp state: %q", name)
}

// LoopbackAddr is the only address a helper is expected to bind when told
// to pick a free local port.
var LoopbackAddr = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// IsLoopback reports whether addr is exactly 127.0.0.1.
//
// The rest of 127.0.0.0/8 is deliberately not accepted: the helper binds
// the canonical loopback address and any other 127.x address belongs to
// something else.
func IsLoopback(addr netip.Addr) bool {
	return addr == LoopbackAddr
}

// ConnectionEntry is one data row of the kernel TCP connection table.
type ConnectionEntry struct {
	// LocalAddr is the decoded local IPv4 address.
	LocalAddr netip.Addr `json:"localAddr"`

	// LocalPort is the local TCP port (0-65535).
	LocalPort uint16 `json:"localPort"`

	// RemoteAddr is the decoded remote IPv4 address (0.0.0.0 for listeners).
	RemoteAddr netip.Addr `json:"remoteAddr"`

	// RemotePort is the remote TCP port (0 for listeners).
	RemotePort uint16 `json:"remotePort"`

	// State is the connection state. Present for diagnostics only.
	State TCPState `json:"state"`

	// UID is the effective uid of the socket's creator.
	UID uint32 `json:"uid"`

	// Inode is the socket inode that ties this row to a file descriptor.
	// Zero means the row is not bound to any socket file (for example a
	// TIME_WAIT placeholder) and it is never attributable to a process.
	Inode uint64 `json:"inode"`
}

// Local returns the local address and port as a single value.
func (e ConnectionEntry) Local() netip.AddrPort {
	return netip.AddrPortFrom(e.LocalAddr, e.LocalPort)
}

// Remote returns the remote address and port as a single value.
func (e ConnectionEntry) Remote() netip.AddrPort {
	return netip.AddrPortFrom(e.RemoteAddr, e.RemotePort)
}

// String returns a netstat-like one line representation.
func (e ConnectionEntry) String() string {
	return fmt.Sprintf("%s -> %s %s inode=%d", e.Local(), e.Remote(), e.State, e.Inode)
}

// InodeSet is the set of socket inodes one process had open at the moment
// its descriptor table was scanned.
type InodeSet map[uint64]struct{}

// NewInodeSet builds a set from the given inodes.
func NewInodeSet(inodes ...uint64) InodeSet {
	s := make(InodeSet, len(inodes))
	for _, ino := range inodes {
		s.Add(ino)
	}
	return s
}

// Add inserts an inode into the set.
func (s InodeSet) Add(inode uint64) {
	s[inode] = struct{}{}
}

// Contains reports whether inode is in the set.
func (s InodeSet) Contains(inode uint64) bool {
	_, ok := s[inode]
	return ok
}

// Len returns the number of inodes in the set.
func (s InodeSet) Len() int {
	return len(s)
}

// Attributes reports whether the connection entry belongs to the process
// this set was read from. Inode 0 never attributes to any process.
func (s InodeSet) Attributes(e ConnectionEntry) bool {
	if e.Inode == 0 {
		return false
	}
	return s.Contains(e.Inode)
}

// ExitCode defines the CLI exit codes. Scripts can tell apart a helper that
// died from a helper that never bound a port.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitLaunchFailed indicates the helper binary could not be started.
	ExitLaunchFailed ExitCode = 2

	// ExitProcessUnreachable indicates the target process exited or its
	// descriptor table could not be read.
	ExitProcessUnreachable ExitCode = 3

	// ExitMalformedTable indicates the kernel TCP table did not match the
	// expected format.
	ExitMalformedTable ExitCode = 4

	// ExitTimeout indicates no loopback port appeared before the deadline.
	ExitTimeout ExitCode = 5

	// ExitInvalidConfig indicates the configuration file or flags are invalid.
	ExitInvalidConfig ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
