package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/wirecheck/wirecheck/internal/harness"
	"github.com/wirecheck/wirecheck/internal/results"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// runSummary is the JSON payload for a completed run invocation.
type runSummary struct {
	Total   int               `json:"total"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Results []*harness.Result `json:"results"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Execute conformance scenarios",
		Long: `Execute one or more conformance scenarios.

Each scenario file describes which side the reference engine plays, the
TLS version, the transfer direction, the frame schedule, and the write
strategy for the handler under test. Scenarios run in order; a failing
scenario does not stop the remaining ones.

Example:
  wirecheck run scenarios/immediate-roundtrip.yaml
  wirecheck run --db ./runs.db scenarios/*.yaml --verbose`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for run history (optional)")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Load everything up front so a typo in the last path doesn't waste
	// the runs before it.
	scenarios := make([]*harness.Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := harness.LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load scenario %s", path), err)
		}
		scenarios = append(scenarios, sc)
	}

	var store *results.Store
	if opts.Database != "" {
		st, err := results.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		store = st
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("error closing history database", "error", closeErr)
			}
		}()
	}

	summary := runSummary{Total: len(scenarios)}
	for _, sc := range scenarios {
		formatter.VerboseLog("running scenario: %s", sc.Name)
		started := time.Now()

		res, err := harness.Run(sc, harness.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("harness error in scenario %s", sc.Name), err)
		}

		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)

		if store != nil {
			if err := store.WriteRun(cmd.Context(), recordFor(res, started)); err != nil {
				logger.Error("failed to record run", "scenario", sc.Name, "error", err)
			}
		}

		if opts.Format != "json" {
			printRunText(formatter, res)
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "\n%d scenario(s): %d passed, %d failed\n",
			summary.Total, summary.Passed, summary.Failed)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

// recordFor converts a harness result into a durable run record.
func recordFor(res *harness.Result, started time.Time) results.Run {
	r := results.Run{
		ID:            res.RunID,
		Scenario:      res.Scenario,
		Passed:        res.Passed,
		BytesSent:     res.BytesSent,
		BytesReceived: res.BytesReceived,
		Frames:        res.Frames,
		Duration:      res.Duration,
		StartedAt:     started,
	}
	if res.Failure != nil {
		r.Failure = string(res.Failure.Code)
	}
	return r
}

func printRunText(formatter *OutputFormatter, res *harness.Result) {
	if res.Passed {
		fmt.Fprintf(formatter.Writer, "✓ %s (%d frames, %d bytes, %s)\n",
			res.Scenario, res.Frames, res.BytesSent, res.Duration.Round(time.Microsecond))
		return
	}
	fmt.Fprintf(formatter.Writer, "✗ %s\n", res.Scenario)
	for _, msg := range res.Errors {
		fmt.Fprintf(formatter.Writer, "    %s\n", msg)
	}
	if res.Failure != nil && res.Failure.Diff != "" {
		fmt.Fprintln(formatter.Writer, res.Failure.Diff)
	}
}
