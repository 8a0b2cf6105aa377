package procfs

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/portprobe/internal/model"
)

// Column indexes of /proc/net/tcp. They are fixed by the kernel's
// seq_file format and are not inferred from the header line:
//
//	sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
//	0:  0100007F:24EB 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 52731 ...
const (
	tcpFieldLocal  = 1
	tcpFieldRemote = 2
	tcpFieldState  = 3
	tcpFieldUID    = 7
	tcpFieldInode  = 9

	tcpMinFields = tcpFieldInode + 1
)

var (
	// ErrTooFewFields means a table line ended before the inode column.
	ErrTooFewFields = errors.New("too few fields")

	// ErrBadAddress means an address column is not an IPv4 hex:port pair.
	ErrBadAddress = errors.New("malformed address")
)

// ParseError describes one connection table line that could not be parsed.
type ParseError struct {
	// Line is the 1-based line number, counting the header as line 1.
	Line int

	// Text is the raw line.
	Text string

	// Err is the field-level cause.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tcp table line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TCPTable is an open connection table. It can be iterated once.
type TCPTable struct {
	r        io.ReadCloser
	name     string
	consumed bool
}

// TCPTable opens the IPv4 TCP table as seen from the network namespace of
// pid. A pid of zero or less opens the table of the reader's own namespace.
func (fsys FS) TCPTable(pid int) (*TCPTable, error) {
	var name string
	if pid > 0 {
		name = fsys.pidPath(pid, "net", "tcp")
	} else {
		name = fsys.path("net", "tcp")
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return NewTCPTable(f, name), nil
}

// NewTCPTable wraps an already open table. name is used in error messages.
func NewTCPTable(r io.ReadCloser, name string) *TCPTable {
	return &TCPTable{r: r, name: name}
}

// Name returns the path or label the table was opened from.
func (t *TCPTable) Name() string {
	return t.name
}

// Close releases the underlying file.
func (t *TCPTable) Close() error {
	return t.r.Close()
}

// Entries yields every data line of the table. A line that does not parse
// yields a *ParseError and iteration continues with the next line. A read
// failure yields one final error.
//
// The sequence is single pass; ranging over it a second time yields nothing.
func (t *TCPTable) Entries() iter.Seq2[model.ConnectionEntry, error] {
	return func(yield func(model.ConnectionEntry, error) bool) {
		if t.consumed {
			return
		}
		t.consumed = true

		scanner := bufio.NewScanner(t.r)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if lineNo == 1 {
				continue // header
			}
			text := scanner.Text()
			if strings.TrimSpace(text) == "" {
				continue
			}
			entry, err := ParseTCPLine(text)
			if err != nil {
				if !yield(model.ConnectionEntry{}, &ParseError{Line: lineNo, Text: text, Err: err}) {
					return
				}
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(model.ConnectionEntry{}, fmt.Errorf("read %s: %w", t.name, err))
		}
	}
}

// ParseTCPLine parses one data line of /proc/net/tcp.
func ParseTCPLine(line string) (model.ConnectionEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < tcpMinFields {
		return model.ConnectionEntry{}, fmt.Errorf("%w: got %d, want at least %d", ErrTooFewFields, len(fields), tcpMinFields)
	}

	local, err := DecodeAddr(fields[tcpFieldLocal])
	if err != nil {
		return model.ConnectionEntry{}, fmt.Errorf("local address: %w", err)
	}
	remote, err := DecodeAddr(fields[tcpFieldRemote])
	if err != nil {
		return model.ConnectionEntry{}, fmt.Errorf("remote address: %w", err)
	}
	state, err := strconv.ParseUint(fields[tcpFieldState], 16, 8)
	if err != nil {
		return model.ConnectionEntry{}, fmt.Errorf("state: %w", err)
	}
	uid, err := strconv.ParseUint(fields[tcpFieldUID], 10, 32)
	if err != nil {
		return model.ConnectionEntry{}, fmt.Errorf("uid: %w", err)
	}
	inode, err := strconv.ParseUint(fields[tcpFieldInode], 10, 64)
	if err != nil {
		return model.ConnectionEntry{}, fmt.Errorf("inode: %w", err)
	}

	return model.ConnectionEntry{
		LocalAddr:  local.Addr(),
		LocalPort:  local.Port(),
		RemoteAddr: remote.Addr(),
		RemotePort: remote.Port(),
		State:      model.TCPState(state),
		UID:        uint32(uid),
		Inode:      inode,
	}, nil
}

// DecodeAddr decodes an "AABBCCDD:PPPP" column.
//
// The kernel prints the network-order address as a host-order 32-bit word,
// so on the little-endian machines this format is defined for the hex
// digits come out byte-reversed: 0100007F is 127.0.0.1.
func DecodeAddr(s string) (netip.AddrPort, error) {
	host, port, ok := strings.Cut(s, ":")
	if !ok || len(host) != 8 {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	raw, err := hex.DecodeString(host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %q: %v", ErrBadAddress, s, err)
	}
	p, err := strconv.ParseUint(port, 16, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: port %q: %v", ErrBadAddress, port, err)
	}

	var ip [4]byte
	binary.LittleEndian.PutUint32(ip[:], binary.BigEndian.Uint32(raw))
	return netip.AddrPortFrom(netip.AddrFrom4(ip), uint16(p)), nil
}

// EncodeAddr is the inverse of DecodeAddr. Non-IPv4 addresses encode as
// 00000000.
func EncodeAddr(ap netip.AddrPort) string {
	var word uint32
	if addr := ap.Addr().Unmap(); addr.Is4() {
		ip := addr.As4()
		word = binary.LittleEndian.Uint32(ip[:])
	}
	return fmt.Sprintf("%08X:%04X", word, ap.Port())
}
