package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitwire/packages/output"
	"github.com/abdul-hamid-achik/hitwire/packages/recording"
)

var runsCmd = &cobra.Command{
	Use:   "runs <db> [run-id]",
	Short: "List or show recorded probes and sessions",
	Long: `List the runs stored with --record, or show one of them.

Examples:
  hitwire runs runs.db
  hitwire runs runs.db 6f1c2a4e-...
  hitwire runs runs.db --query "SELECT status_code, COUNT(*) AS n FROM samples GROUP BY status_code"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runsCommand,
}

var (
	runsQueryFlag string
	runsJSONFlag  bool
)

func init() {
	runsCmd.Flags().StringVar(&runsQueryFlag, "query", "", "Run a read-only SQL query against the recordings")
	runsCmd.Flags().BoolVar(&runsJSONFlag, "json", false, "Output a probe run as JSON")
}

func runsCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := recording.Open(args[0])
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	reporter := output.NewReporter(
		output.WithWriter(out),
		output.WithNoColor(cfg.GetNoColor()),
		output.WithVerbose(cfg.GetVerbose()),
	)

	if runsQueryFlag != "" {
		result, err := store.Query(ctx, runsQueryFlag)
		if err != nil {
			return exitWith(ExitUsageError, err)
		}
		fmt.Fprintln(out, strings.Join(result.Columns, "\t"))
		for _, row := range result.Rows {
			values := make([]string, len(result.Columns))
			for i, col := range result.Columns {
				values[i] = fmt.Sprintf("%v", row[col])
			}
			fmt.Fprintln(out, strings.Join(values, "\t"))
		}
		return nil
	}

	if len(args) == 1 {
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No recorded runs")
			return nil
		}
		for _, run := range runs {
			status := "open"
			if !run.FinishedAt.IsZero() {
				status = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Fprintf(out, "%s  %-7s  %s  %-8s  %s\n",
				run.ID, run.Kind, run.StartedAt.Format(time.RFC3339), status, run.Target)
		}
		return nil
	}

	run, err := store.Run(ctx, args[1])
	if err != nil {
		if errors.Is(err, recording.ErrRunNotFound) {
			return exitWith(ExitUsageError, err)
		}
		return err
	}

	switch run.Kind {
	case recording.KindProbe:
		tracker, err := store.Tracker(ctx, run.ID)
		if err != nil {
			return err
		}
		stats := tracker.Stats()
		summary := output.ProbeSummary{
			Method:       "recorded",
			Target:       run.Target,
			Stats:        stats,
			Distribution: tracker.Distribution(),
			Attempts:     stats.Count,
			RunID:        run.ID,
		}
		if !run.FinishedAt.IsZero() {
			summary.Duration = run.FinishedAt.Sub(run.StartedAt)
		}
		if runsJSONFlag {
			return reporter.JSONProbe(summary)
		}
		reporter.Probe(summary)

	case recording.KindSession:
		messages, err := store.Messages(ctx, run.ID)
		if err != nil {
			return err
		}
		reporter.Info("Session %s recorded %s", run.Target, run.StartedAt.Format(time.RFC3339))
		reporter.Messages(messages)
	}
	return nil
}
