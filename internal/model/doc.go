// Package model defines the domain types and value objects for the
// portprobe CLI.
//
// This package contains pure data structures with no external dependencies.
// ConnectionEntry and InodeSet are transient snapshots of kernel state
// re-read on every poll; nothing here is persisted.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
