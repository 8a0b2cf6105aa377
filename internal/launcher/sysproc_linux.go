//go:build linux

package launcher

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr makes the kernel kill the helper if the launcher dies first.
// Pdeathsig fires when the forking OS thread exits, so Launch must not run
// on a goroutine that called runtime.LockOSThread.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}
}
