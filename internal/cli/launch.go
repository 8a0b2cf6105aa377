package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portprobe/internal/config"
	"github.com/mmr-tortoise/portprobe/internal/launcher"
	"github.com/mmr-tortoise/portprobe/internal/model"
	"github.com/mmr-tortoise/portprobe/internal/port"
)

// launchFlags holds the flag values for the launch command.
// These are bound to cobra flags in NewLaunchCommand.
type launchFlags struct {
	timeout      time.Duration
	pollInterval time.Duration
	portArg      string
	readyCheck   bool
	helperLog    string
}

// NewLaunchCommand creates the "launch" cobra command.
func NewLaunchCommand() *cobra.Command {
	flags := &launchFlags{}

	cmd := &cobra.Command{
		Use:   "launch [flags] [-- BINARY [ARGS...]]",
		Short: "Start a helper on a free port and print its address",
		Long: `Start a helper process, find the loopback port it bound and print it.

The helper is told to pick any free port (--port=0 by default) and keeps
running until portprobe receives SIGINT or SIGTERM, or the helper exits.
Without a BINARY the helper from the config file is used, falling back to
chromedriver.

Examples:
  portprobe launch
  portprobe launch --ready-check -- chromedriver --log-level=INFO
  portprobe launch --port-arg=--port=0 --json -- ./geckodriver`,

		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := applyLaunchFlags(cfg, flags, cmd.Flags().Changed, args); err != nil {
				return err
			}
			return runLaunch(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0,
		"How long to wait for the helper to bind (default: 30s)")
	cmd.Flags().DurationVar(&flags.pollInterval, "poll-interval", 0,
		"Pause between scans of /proc (default: 1ms)")
	cmd.Flags().StringVar(&flags.portArg, "port-arg", "",
		`Argument that makes the helper pick a free port (default: "--port=0", "" for none)`)
	cmd.Flags().BoolVar(&flags.readyCheck, "ready-check", false,
		"Wait until the discovered port accepts connections")
	cmd.Flags().StringVar(&flags.helperLog, "helper-log", "",
		"Write helper output to this file, rotated by size")

	return cmd
}

// applyLaunchFlags overlays explicitly set flags and positional arguments
// on cfg and validates the result. changed reports whether a flag was set
// on the command line, so unset flags never clobber config file values.
func applyLaunchFlags(cfg *config.Config, flags *launchFlags, changed func(string) bool, args []string) error {
	if len(args) > 0 {
		cfg.Helper.Binary = args[0]
		cfg.Helper.Args = args[1:]
	}
	if changed("timeout") {
		cfg.Timeout = config.Duration(flags.timeout)
	}
	if changed("poll-interval") {
		cfg.PollInterval = config.Duration(flags.pollInterval)
	}
	if changed("port-arg") {
		portArg := flags.portArg
		cfg.Helper.PortArg = &portArg
	}
	if changed("ready-check") {
		cfg.ReadyCheck = flags.readyCheck
	}
	if changed("helper-log") {
		cfg.HelperLog.Path = flags.helperLog
	}

	if err := cfg.Validate(); err != nil {
		return invalidFlag("invalid launch settings", err)
	}
	return nil
}

// runLaunch starts the helper, prints its address and blocks until a
// termination signal arrives or the helper exits.
func runLaunch(ctx context.Context, w io.Writer, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []launcher.Option{
		launcher.WithArgs(cfg.Helper.Args...),
		launcher.WithPortArg(cfg.PortArg()),
		launcher.WithTimeout(cfg.Timeout.Std()),
		launcher.WithReadyCheck(cfg.ReadyCheck),
		launcher.WithLogger(logger),
		launcher.WithResolver(port.NewResolver(
			port.WithTimeout(cfg.Timeout.Std()),
			port.WithPollInterval(cfg.PollInterval.Std()),
			port.WithLogger(logger),
		)),
	}
	if cfg.HelperLog.Path != "" {
		out := launcher.RotatingOutput(launcher.LogConfig{
			Path:       cfg.HelperLog.Path,
			MaxSizeMB:  cfg.HelperLog.MaxSizeMB,
			MaxBackups: cfg.HelperLog.MaxBackups,
			MaxAgeDays: cfg.HelperLog.MaxAgeDays,
			Compress:   cfg.HelperLog.Compress,
		})
		// Deferred before the helper's Close, so it runs after the helper
		// has been reaped and nothing writes to the file any more.
		defer func() { _ = out.Close() }()
		opts = append(opts, launcher.WithOutput(out))
		VerboseLog("Writing helper output to %s", cfg.HelperLog.Path)
	}

	l := launcher.New(cfg.Helper.Binary, opts...)
	VerboseLog("Launching %s %v", cfg.Helper.Binary, l.Args())

	h, err := l.Launch(ctx)
	if err != nil {
		return toCLIError(err)
	}
	defer func() { _ = h.Close() }()

	printEndpoint(w, endpointResult{
		PID:     h.PID(),
		Port:    h.Port(),
		Address: h.Addr().String(),
	})

	select {
	case <-ctx.Done():
		VerboseLog("Received signal, stopping helper (pid %d)", h.PID())
		return h.Close()
	case <-h.Done():
		if err := h.Wait(); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("helper (pid %d) exited", h.PID()), err)
		}
		VerboseLog("Helper (pid %d) exited", h.PID())
		return nil
	}
}

// endpointResult is the output of the launch and resolve commands.
type endpointResult struct {
	PID     int    `json:"pid"`
	Port    uint16 `json:"port"`
	Address string `json:"address"`
}

// printEndpoint writes the discovered address, either as a bare
// "127.0.0.1:<port>" line for shell use or as a JSON object.
func printEndpoint(w io.Writer, r endpointResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(r, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}
	_, _ = fmt.Fprintln(w, r.Address)
}
