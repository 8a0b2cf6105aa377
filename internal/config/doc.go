// Package config loads the optional portprobe configuration file.
//
// The file may be YAML (.portprobe.yaml, .portprobe.yml) or JSON with
// comments (.portprobe.jsonc, .portprobe.json). It sets defaults for the
// helper binary, discovery timing and the rotated helper log. Command-line
// flags take precedence over anything read here.
//
// Durations are written as Go duration strings such as "30s" or "1ms".
package config
