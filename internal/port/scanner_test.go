package port

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedLoopbackPort returns a loopback address that nothing listens on.
// It binds an OS-assigned port and releases it again.
func closedLoopbackPort(t *testing.T) netip.AddrPort {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "failed to start test listener")
	addr := listener.Addr().(*net.TCPAddr).AddrPort()
	require.NoError(t, listener.Close())
	return addr
}

// TestIsListening_OpenPort verifies that a live listener is detected.
func TestIsListening_OpenPort(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	scanner := NewScanner(0)
	addr := listener.Addr().(*net.TCPAddr).AddrPort()
	assert.True(t, scanner.IsListening(context.Background(), addr))
}

// TestIsListening_ClosedPort verifies that a released port is reported as
// not listening.
func TestIsListening_ClosedPort(t *testing.T) {
	scanner := NewScanner(0)
	assert.False(t, scanner.IsListening(context.Background(), closedLoopbackPort(t)))
}

// TestWaitListening_LateListener verifies that WaitListening keeps dialing
// until a listener shows up.
func TestWaitListening_LateListener(t *testing.T) {
	addr := closedLoopbackPort(t)

	ready := make(chan net.Listener, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		ln, err := net.Listen("tcp4", addr.String())
		if err != nil {
			ready <- nil
			return
		}
		ready <- ln
	}()

	err := NewScanner(5*time.Millisecond).WaitListening(context.Background(), addr, 5*time.Second)
	ln := <-ready
	if ln == nil {
		t.Skip("port was taken by another process before the listener could bind")
	}
	defer func() { _ = ln.Close() }()
	assert.NoError(t, err)
}

// TestWaitListening_Timeout verifies that WaitListening gives up.
func TestWaitListening_Timeout(t *testing.T) {
	addr := closedLoopbackPort(t)

	start := time.Now()
	err := NewScanner(5*time.Millisecond).WaitListening(context.Background(), addr, 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accepting connections")
	assert.Less(t, time.Since(start), 2*time.Second)
}
