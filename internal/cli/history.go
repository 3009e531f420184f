package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wirecheck/wirecheck/internal/results"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Scenario string
	Limit    int
}

// historyEntry is the JSON shape of one recorded run.
type historyEntry struct {
	ID            string `json:"id"`
	Scenario      string `json:"scenario"`
	Passed        bool   `json:"passed"`
	Failure       string `json:"failure,omitempty"`
	BytesSent     int    `json:"bytes_sent"`
	BytesReceived int    `json:"bytes_received"`
	Frames        int    `json:"frames"`
	DurationMS    int64  `json:"duration_ms"`
	StartedAt     string `json:"started_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded run history",
		Long: `Show recorded scenario runs, newest first.

Runs are recorded when the run command is given a --db path. Filter by
scenario name with --scenario.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "filter by scenario name")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to show")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	store, err := results.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), opts.Scenario, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		entries := make([]historyEntry, 0, len(runs))
		for _, r := range runs {
			entries = append(entries, historyEntry{
				ID:            r.ID,
				Scenario:      r.Scenario,
				Passed:        r.Passed,
				Failure:       r.Failure,
				BytesSent:     r.BytesSent,
				BytesReceived: r.BytesReceived,
				Frames:        r.Frames,
				DurationMS:    r.Duration.Milliseconds(),
				StartedAt:     r.StartedAt.Format(time.RFC3339),
			})
		}
		return formatter.Success(entries)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		mark := "✓"
		detail := ""
		if !r.Passed {
			mark = "✗"
			detail = " " + r.Failure
		}
		fmt.Fprintf(formatter.Writer, "%s %s  %s  %d bytes  %s%s\n",
			mark, r.StartedAt.Format(time.RFC3339), r.Scenario,
			r.BytesSent, r.Duration.Round(time.Millisecond), detail)
	}
	return nil
}
