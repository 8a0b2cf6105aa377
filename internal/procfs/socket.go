package procfs

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/portprobe/internal/model"
)

// socketLinkPrefix is how the kernel renders a descriptor that refers to a
// socket: "socket:[52731]".
const socketLinkPrefix = "socket:["

// readlink is swapped out in tests to simulate descriptors that are closed
// between listing the fd directory and reading the link.
var readlink = os.Readlink

// ListError means a process's descriptor table could not be listed at all,
// typically because the process exited or belongs to another user.
type ListError struct {
	PID  int
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list descriptors of process %d: %v", e.PID, e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// SocketInodes lists the socket inodes pid holds open.
//
// The descriptor directory is listed eagerly and a failure there is
// returned directly as a *ListError. Links are read lazily. Descriptors
// that are not sockets, and descriptors that disappear before their link
// is read, are skipped. Any other per-descriptor failure is yielded as an
// error element.
func (fsys FS) SocketInodes(pid int) (iter.Seq2[uint64, error], error) {
	if pid <= 0 {
		return nil, &ListError{PID: pid, Err: ErrInvalidPID}
	}
	dir := fsys.pidPath(pid, "fd")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ListError{PID: pid, Path: dir, Err: err}
	}

	return func(yield func(uint64, error) bool) {
		for _, e := range entries {
			link, err := readlink(filepath.Join(dir, e.Name()))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if !yield(0, fmt.Errorf("descriptor %s: %w", e.Name(), err)) {
					return
				}
				continue
			}
			inode, ok, err := ParseSocketLink(link)
			if err != nil {
				if !yield(0, fmt.Errorf("descriptor %s: %w", e.Name(), err)) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			if !yield(inode, nil) {
				return
			}
		}
	}, nil
}

// InodeSet collects SocketInodes into a set, failing on the first error.
func (fsys FS) InodeSet(pid int) (model.InodeSet, error) {
	seq, err := fsys.SocketInodes(pid)
	if err != nil {
		return nil, err
	}
	set := model.NewInodeSet()
	for inode, err := range seq {
		if err != nil {
			return nil, err
		}
		set.Add(inode)
	}
	return set, nil
}

// ParseSocketLink extracts the inode from a "socket:[<inode>]" link target.
// ok is false for links that do not refer to a socket.
func ParseSocketLink(link string) (inode uint64, ok bool, err error) {
	rest, found := strings.CutPrefix(link, socketLinkPrefix)
	if !found {
		return 0, false, nil
	}
	digits, found := strings.CutSuffix(rest, "]")
	if !found {
		return 0, false, fmt.Errorf("malformed socket link %q", link)
	}
	inode, err = strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed socket link %q: %w", link, err)
	}
	return inode, true, nil
}
