package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/portprobe/internal/model"
)

// FileNames lists the config file names Find looks for, in priority order.
var FileNames = []string{
	".portprobe.yaml",
	".portprobe.yml",
	".portprobe.jsonc",
	".portprobe.json",
}

const (
	defaultBinary       = "chromedriver"
	defaultPortArg      = "--port=0"
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = time.Millisecond
)

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Only scalar values are
// accepted, so a bare number like 30 is rejected rather than read as
// nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", value.Line)
	}
	if tag := value.ShortTag(); tag == "!!int" || tag == "!!float" {
		return fmt.Errorf("line %d: duration %s needs a unit, e.g. \"%ss\"", value.Line, value.Value, value.Value)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Helper describes the helper process started by "portprobe launch".
type Helper struct {
	// Binary is the executable name or path. It is looked up in PATH when
	// it contains no slash.
	Binary string `yaml:"binary" json:"binary"`

	// Args are passed before PortArg.
	Args []string `yaml:"args" json:"args"`

	// PortArg makes the helper bind any free port. A nil value means the
	// default; an explicit empty string passes nothing.
	PortArg *string `yaml:"portArg" json:"portArg"`
}

// HelperLog configures size-based rotation of the helper's output. An
// empty Path discards the output.
type HelperLog struct {
	Path       string `yaml:"path" json:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Config is the parsed configuration file.
type Config struct {
	Helper       Helper    `yaml:"helper" json:"helper"`
	Timeout      Duration  `yaml:"timeout" json:"timeout"`
	PollInterval Duration  `yaml:"pollInterval" json:"pollInterval"`
	ReadyCheck   bool      `yaml:"readyCheck" json:"readyCheck"`
	HelperLog    HelperLog `yaml:"helperLog" json:"helperLog"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `yaml:"-" json:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Helper:       Helper{Binary: defaultBinary},
		Timeout:      Duration(defaultTimeout),
		PollInterval: Duration(defaultPollInterval),
	}
}

// PortArg returns the effective port argument.
func (c *Config) PortArg() string {
	if c.Helper.PortArg == nil {
		return defaultPortArg
	}
	return *c.Helper.PortArg
}

// Validate checks value ranges. Fields missing from the file keep their
// defaults, so only explicit bad values fail here.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Helper.Binary) == "" {
		errs = append(errs, errors.New("helper.binary must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval))
	}
	if c.PollInterval > c.Timeout {
		errs = append(errs, fmt.Errorf("pollInterval %s exceeds timeout %s", c.PollInterval, c.Timeout))
	}
	if c.HelperLog.MaxSizeMB < 0 {
		errs = append(errs, errors.New("helperLog.maxSizeMB must not be negative"))
	}
	if c.HelperLog.MaxBackups < 0 {
		errs = append(errs, errors.New("helperLog.maxBackups must not be negative"))
	}
	if c.HelperLog.MaxAgeDays < 0 {
		errs = append(errs, errors.New("helperLog.maxAgeDays must not be negative"))
	}
	return errors.Join(errs...)
}

// Load reads the config file at path. Values absent from the file keep
// their defaults. The format is chosen by extension: .yaml and .yml are
// YAML, .json and .jsonc are JSON with comments allowed. Unknown keys are
// rejected so that typos do not go unnoticed. YAML keys must match
// exactly; JSON keys match regardless of case.
//
// All failures are returned as a CLIError with ExitInvalidConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitInvalidConfig,
				fmt.Sprintf("config file not found: %s", path),
				err,
			)
		}
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "failed to read config file", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	case ".json", ".jsonc":
		err = decodeJSON(data, cfg)
	default:
		return nil, model.NewCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("unsupported config format %q (use .yaml, .yml, .json or .jsonc)", ext),
		)
	}
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("failed to parse config file %s", path),
			err,
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(
			model.ExitInvalidConfig,
			fmt.Sprintf("invalid config file %s", path),
			err,
		)
	}
	cfg.Path = path
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	// Comments and trailing commas are stripped first; encoding/json does
	// the rest.
	clean := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(clean)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Find returns the first config file from FileNames present in dir.
// The second result is false when there is none, which is not an error
// since the file is optional.
func Find(dir string) (string, bool) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Resolve loads the config from explicitPath when set, otherwise from the
// first file Find locates in dir, otherwise returns Default.
func Resolve(explicitPath, dir string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}
	if path, ok := Find(dir); ok {
		return Load(path)
	}
	return Default(), nil
}
