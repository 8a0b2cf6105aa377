// Package procfs reads the two kernel views that port discovery correlates:
// the TCP connection table (/proc/<pid>/net/tcp) and a process's descriptor
// table (/proc/<pid>/fd).
//
// Both readers are lazy single-pass sequences built on iter.Seq2. A bad
// table line or a bad descriptor link shows up as an individual error
// element; it never silently ends the sequence. Re-reading means calling
// the reader again, which re-opens the live kernel file.
//
// FS carries the proc mount root so tests can point the readers at a
// fixture tree instead of the real /proc.
package procfs
