// Package port discovers which loopback TCP port a process has bound.
//
// The helper process is told to pick any free port and never reports which
// one it got, so the Resolver finds it from the outside:
//
//	inodes  := sockets held in /proc/<pid>/fd
//	entries := rows of /proc/<pid>/net/tcp
//	port    := first entry whose inode is in inodes and whose address is 127.0.0.1
//
// Both views are re-read on every poll because the process opens and
// closes descriptors while it starts up. Polling runs at a fixed short
// interval until a match appears or the timeout elapses.
//
// Failures fall into three classes: the process cannot be inspected
// (UnreachableProcessError), the kernel table does not parse
// (MalformedTableError), or nothing matched in time (TimeoutError). The
// first two are never retried.
//
// The Scanner complements discovery: once the port is known it can wait
// until the port actually accepts connections.
package port
