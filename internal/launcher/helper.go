package launcher

import (
	"errors"
	"net/netip"
	"os"
	"os/exec"
	"sync"

	"github.com/mmr-tortoise/portprobe/internal/model"
)

// Helper is a running helper process with a known loopback port.
type Helper struct {
	cmd  *exec.Cmd
	port uint16

	// done is closed once the process has been reaped.
	done    chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// newHelper starts reaping cmd in the background. Reaping right away keeps
// an early-exiting helper from lingering as a zombie whose /proc entry
// would still look alive to the resolver.
func newHelper(cmd *exec.Cmd) *Helper {
	h := &Helper{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()
	return h
}

// PID returns the helper's process id.
func (h *Helper) PID() int {
	return h.cmd.Process.Pid
}

// Port returns the discovered loopback port.
func (h *Helper) Port() uint16 {
	return h.port
}

// Addr returns the address the helper serves on.
func (h *Helper) Addr() netip.AddrPort {
	return netip.AddrPortFrom(model.LoopbackAddr, h.port)
}

// Done is closed when the helper process has exited and been reaped.
func (h *Helper) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the helper exits and returns its exit status.
func (h *Helper) Wait() error {
	<-h.done
	return h.waitErr
}

// Close kills the helper and waits for it to be reaped. It is safe to call
// more than once and after the helper exited on its own.
func (h *Helper) Close() error {
	h.closeOnce.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.closeErr = err
			return
		}
		<-h.done
	})
	return h.closeErr
}
