// Package procfstest builds fake proc trees for tests.
//
// A Tree lays out just enough of /proc for the procfs readers:
// <root>/<pid>/net/tcp and <root>/<pid>/fd/<n> symlinks. Socket links are
// dangling symlinks with the kernel's "socket:[inode]" text, which is all
// os.Readlink needs.
package procfstest

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portprobe/internal/model"
	"github.com/mmr-tortoise/portprobe/internal/procfs"
)

// Header is the first line of /proc/net/tcp as printed by the kernel.
const Header = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode"

// Tree is a fake proc mount under a temporary directory.
type Tree struct {
	t    testing.TB
	Root string
}

// NewTree creates an empty tree that is removed when the test ends.
func NewTree(t testing.TB) *Tree {
	t.Helper()
	return &Tree{t: t, Root: t.TempDir()}
}

// FS returns a procfs handle reading from this tree.
func (tr *Tree) FS() procfs.FS {
	return procfs.NewFS(tr.Root)
}

// Line formats an entry the way the kernel prints it.
func Line(slot int, e model.ConnectionEntry) string {
	return fmt.Sprintf("%4d: %s %s %02X 00000000:00000000 00:00000000 00000000 %5d        0 %d 1 0000000000000000 100 0 0 10 0",
		slot,
		procfs.EncodeAddr(e.Local()),
		procfs.EncodeAddr(e.Remote()),
		uint8(e.State),
		e.UID,
		e.Inode,
	)
}

// Listener returns a LISTEN entry for addr:port owned by inode.
func Listener(addr string, port uint16, inode uint64) model.ConnectionEntry {
	return model.ConnectionEntry{
		LocalAddr:  netip.MustParseAddr(addr),
		LocalPort:  port,
		RemoteAddr: netip.IPv4Unspecified(),
		State:      model.StateListen,
		UID:        1000,
		Inode:      inode,
	}
}

// SetTCP writes <root>/<pid>/net/tcp with the header and the given entries,
// replacing any previous content.
func (tr *Tree) SetTCP(pid int, entries ...model.ConnectionEntry) {
	tr.t.Helper()
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, Line(i, e))
	}
	tr.SetTCPLines(pid, lines...)
}

// SetTCPLines writes <root>/<pid>/net/tcp with the header and raw lines.
func (tr *Tree) SetTCPLines(pid int, lines ...string) {
	tr.t.Helper()
	dir := filepath.Join(tr.Root, strconv.Itoa(pid), "net")
	require.NoError(tr.t, os.MkdirAll(dir, 0o755))

	content := Header + "\n"
	if len(lines) > 0 {
		content += strings.Join(lines, "\n") + "\n"
	}
	// Write to a temp file and rename so a concurrent reader never sees a
	// half-written table.
	tmp := filepath.Join(dir, ".tcp.tmp")
	require.NoError(tr.t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(tr.t, os.Rename(tmp, filepath.Join(dir, "tcp")))
}

// AddFD creates <root>/<pid>/fd/<fd> as a symlink to target.
func (tr *Tree) AddFD(pid, fd int, target string) {
	tr.t.Helper()
	dir := filepath.Join(tr.Root, strconv.Itoa(pid), "fd")
	require.NoError(tr.t, os.MkdirAll(dir, 0o755))
	require.NoError(tr.t, os.Symlink(target, filepath.Join(dir, strconv.Itoa(fd))))
}

// AddSocket creates a descriptor referring to the socket with inode.
func (tr *Tree) AddSocket(pid, fd int, inode uint64) {
	tr.t.Helper()
	tr.AddFD(pid, fd, fmt.Sprintf("socket:[%d]", inode))
}

// AddProcess creates an empty descriptor table for pid, so the process
// exists but holds no sockets yet.
func (tr *Tree) AddProcess(pid int) {
	tr.t.Helper()
	require.NoError(tr.t, os.MkdirAll(filepath.Join(tr.Root, strconv.Itoa(pid), "fd"), 0o755))
}

// RemoveProcess deletes everything under <root>/<pid>, as if it exited.
func (tr *Tree) RemoveProcess(pid int) {
	tr.t.Helper()
	require.NoError(tr.t, os.RemoveAll(filepath.Join(tr.Root, strconv.Itoa(pid))))
}
