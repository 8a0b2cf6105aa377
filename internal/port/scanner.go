package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// defaultDialTimeout caps a single connection attempt against loopback.
const defaultDialTimeout = 250 * time.Millisecond

var errNotListening = errors.New("connection refused or timed out")

// Scanner checks whether a discovered port actually accepts connections.
//
// A socket shows up in the connection table as soon as the helper calls
// bind(2), which can be a moment before listen(2). Callers that want to
// talk to the helper right away use WaitListening to close that gap.
type Scanner struct {
	dialer   net.Dialer
	interval time.Duration
}

// NewScanner creates a Scanner that retries every interval. A non-positive
// interval means 10ms.
func NewScanner(interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Scanner{
		dialer:   net.Dialer{Timeout: defaultDialTimeout},
		interval: interval,
	}
}

// IsListening reports whether a TCP connection to addr succeeds right now.
// The probe connection is closed immediately.
func (s *Scanner) IsListening(ctx context.Context, addr netip.AddrPort) bool {
	conn, err := s.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitListening dials addr until it accepts a connection, ctx is done or
// timeout elapses.
func (s *Scanner) WaitListening(ctx context.Context, addr netip.AddrPort, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.New(
		retry.Context(ctx),
		retry.UntilSucceeded(),
		retry.Delay(s.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		if !s.IsListening(ctx, addr) {
			return errNotListening
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s not accepting connections after %s: %w", addr, timeout, err)
	}
	return nil
}
