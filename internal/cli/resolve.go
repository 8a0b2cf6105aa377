package cli

import (
	"context"
	"io"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portprobe/internal/model"
	"github.com/mmr-tortoise/portprobe/internal/port"
)

// resolveFlags holds the flag values for the resolve command.
type resolveFlags struct {
	pid          int
	timeout      time.Duration
	pollInterval time.Duration
}

// NewResolveCommand creates the "resolve" cobra command.
func NewResolveCommand() *cobra.Command {
	flags := &resolveFlags{}

	cmd := &cobra.Command{
		Use:   "resolve --pid PID",
		Short: "Print the loopback port of a running process",
		Long: `Wait until the given process has a socket bound to 127.0.0.1 and print
the address.

Examples:
  portprobe resolve --pid 4242
  portprobe resolve --pid 4242 --timeout 5s --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.pid <= 0 {
				return invalidFlag("--pid must be a positive process id", nil)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			timeout := cfg.Timeout.Std()
			if cmd.Flags().Changed("timeout") {
				timeout = flags.timeout
			}
			interval := cfg.PollInterval.Std()
			if cmd.Flags().Changed("poll-interval") {
				interval = flags.pollInterval
			}
			if timeout <= 0 || interval <= 0 {
				return invalidFlag("--timeout and --poll-interval must be positive", nil)
			}

			resolver := port.NewResolver(
				port.WithTimeout(timeout),
				port.WithPollInterval(interval),
				port.WithLogger(logger),
			)
			return runResolve(cmd.Context(), cmd.OutOrStdout(), resolver, flags.pid)
		},
	}

	cmd.Flags().IntVar(&flags.pid, "pid", 0, "Process id to inspect")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "How long to wait (default: 30s)")
	cmd.Flags().DurationVar(&flags.pollInterval, "poll-interval", 0, "Pause between scans (default: 1ms)")
	_ = cmd.MarkFlagRequired("pid")

	return cmd
}

// runResolve waits for pid's loopback port and prints it.
func runResolve(ctx context.Context, w io.Writer, resolver *port.Resolver, pid int) error {
	VerboseLog("Resolving loopback port of pid %d (timeout %s)", pid, resolver.Timeout())
	p, err := resolver.Resolve(ctx, pid)
	if err != nil {
		return toCLIError(err)
	}
	printEndpoint(w, endpointResult{
		PID:     pid,
		Port:    p,
		Address: netip.AddrPortFrom(model.LoopbackAddr, p).String(),
	})
	return nil
}
