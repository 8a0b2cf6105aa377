package procfs

import (
	"errors"
	"path/filepath"
	"strconv"
)

// DefaultRoot is the usual proc mount point.
const DefaultRoot = "/proc"

// ErrInvalidPID is returned for process identifiers that cannot name a
// process (zero or negative).
var ErrInvalidPID = errors.New("invalid process id")

// FS is a handle on a proc filesystem mount.
//
// The zero value reads from DefaultRoot.
type FS struct {
	root string
}

// NewFS returns an FS rooted at root. An empty root means DefaultRoot.
func NewFS(root string) FS {
	return FS{root: root}
}

// Root returns the mount point this FS reads from.
func (fsys FS) Root() string {
	if fsys.root == "" {
		return DefaultRoot
	}
	return fsys.root
}

// path joins elements below the root.
func (fsys FS) path(elem ...string) string {
	return filepath.Join(append([]string{fsys.Root()}, elem...)...)
}

// pidPath joins elements below /proc/<pid>.
func (fsys FS) pidPath(pid int, elem ...string) string {
	return fsys.path(append([]string{strconv.Itoa(pid)}, elem...)...)
}
