package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portprobe/internal/model"
	"github.com/mmr-tortoise/portprobe/internal/port"
)

// socketsFlags holds the flag values for the sockets command.
type socketsFlags struct {
	pid   int
	all   bool
	state string
}

// NewSocketsCommand creates the "sockets" cobra command.
func NewSocketsCommand() *cobra.Command {
	flags := &socketsFlags{}

	cmd := &cobra.Command{
		Use:   "sockets --pid PID",
		Short: "List the TCP sockets owned by a process",
		Long: `Show the IPv4 connection table entries whose socket is held by the given
process. Only entries bound to 127.0.0.1 are shown unless --all is set.
--state narrows the list to one TCP state, e.g. LISTEN or ESTABLISHED.

The table is read once; unlike resolve, this command does not wait.

Examples:
  portprobe sockets --pid 4242
  portprobe sockets --pid 4242 --state listen
  portprobe sockets --pid 4242 --all --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.pid <= 0 {
				return invalidFlag("--pid must be a positive process id", nil)
			}
			var state model.TCPState
			if flags.state != "" {
				parsed, err := model.ParseTCPState(flags.state)
				if err != nil {
					return invalidFlag("invalid --state", err)
				}
				state = parsed
			}
			resolver := port.NewResolver(port.WithLogger(logger))
			entries, err := resolver.Snapshot(flags.pid)
			if err != nil {
				return toCLIError(err)
			}
			VerboseLog("pid %d holds %d IPv4 TCP sockets", flags.pid, len(entries))
			if !flags.all {
				entries = filterLoopback(entries)
			}
			if state != 0 {
				entries = filterState(entries, state)
			}
			printSockets(cmd.OutOrStdout(), flags.pid, entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.pid, "pid", 0, "Process id to inspect")
	cmd.Flags().BoolVar(&flags.all, "all", false, "Include sockets not bound to 127.0.0.1")
	cmd.Flags().StringVar(&flags.state, "state", "", "Only show sockets in this TCP state")
	_ = cmd.MarkFlagRequired("pid")

	return cmd
}

// filterLoopback keeps the entries whose local address is 127.0.0.1.
func filterLoopback(entries []model.ConnectionEntry) []model.ConnectionEntry {
	out := make([]model.ConnectionEntry, 0, len(entries))
	for _, e := range entries {
		if model.IsLoopback(e.LocalAddr) {
			out = append(out, e)
		}
	}
	return out
}

// filterState keeps the entries in the given TCP state.
func filterState(entries []model.ConnectionEntry, state model.TCPState) []model.ConnectionEntry {
	out := make([]model.ConnectionEntry, 0, len(entries))
	for _, e := range entries {
		if e.State == state {
			out = append(out, e)
		}
	}
	return out
}

// printSockets writes entries in text or JSON format, depending on the
// global --json flag.
func printSockets(w io.Writer, pid int, entries []model.ConnectionEntry) {
	if IsJSONOutput() {
		printSocketsJSON(w, pid, entries)
	} else {
		printSocketsText(w, entries)
	}
}

func printSocketsJSON(w io.Writer, pid int, entries []model.ConnectionEntry) {
	type resultJSON struct {
		PID     int                     `json:"pid"`
		Sockets []model.ConnectionEntry `json:"sockets"`
	}
	if entries == nil {
		// [] rather than null when nothing matched.
		entries = []model.ConnectionEntry{}
	}
	data, _ := json.MarshalIndent(resultJSON{PID: pid, Sockets: entries}, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
}

// printSocketsText writes a table with aligned columns:
//
//	LOCAL                  REMOTE                 STATE        UID      INODE
//	127.0.0.1:9515         0.0.0.0:0              LISTEN       1000     4242
func printSocketsText(w io.Writer, entries []model.ConnectionEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No matching sockets found.")
		return
	}

	_, _ = fmt.Fprintf(w, "%-22s %-22s %-12s %-8s %s\n",
		"LOCAL", "REMOTE", "STATE", "UID", "INODE")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%-22s %-22s %-12s %-8d %d\n",
			e.Local(), e.Remote(), e.State, e.UID, e.Inode)
	}
}
