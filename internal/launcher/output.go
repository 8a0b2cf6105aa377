package launcher

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Defaults for rotated helper logs. WebDriver servers are chatty with
// verbose logging enabled, so the files are kept small.
const (
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 7
)

// LogConfig describes a size-rotated file for helper output.
type LogConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// RotatingOutput returns a writer for WithOutput that rotates the file at
// cfg.Path by size. Zero limits take the package defaults. The caller
// closes the writer after the helper has exited.
func RotatingOutput(cfg LogConfig) io.WriteCloser {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultLogMaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultLogMaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
