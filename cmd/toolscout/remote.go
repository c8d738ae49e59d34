package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/toolscout/internal/app"
	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/runner"
	"github.com/Kocoro-lab/toolscout/internal/temporal"
)

func (c *cli) submitCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit <query>",
		Short: "Start a research workflow on Temporal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			tc, err := temporal.Dial(ctx, c.cfg.Temporal, c.logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			starter := temporal.NewStarter(tc, c.cfg.Temporal)
			runID := runner.NewRunID()
			if _, err := starter.Start(ctx, runID, strings.Join(args, " "), c.cfg.Research.Settings); err != nil {
				return err
			}
			fmt.Fprintln(c.out, runID)
			if !wait {
				return nil
			}
			state, err := starter.Wait(ctx, runID)
			if err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}
			printReport(c.out, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow and print the report")
	return cmd
}

func (c *cli) openStore() (*db.Client, error) {
	if !c.cfg.Database.Enabled {
		return nil, fmt.Errorf("database is disabled; set database.enabled in %s", c.configPath)
	}
	return app.OpenDatabase(c.cfg.Database, c.logger)
}

func (c *cli) showCmd() *cobra.Command {
	var (
		asJSON bool
		events bool
	)
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a persisted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if events {
				logs, err := store.ListEventLogs(ctx, args[0], 0)
				if err != nil {
					return err
				}
				printEventLogs(c.out, logs)
				return nil
			}
			state, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(reportOf(state))
			}
			printReport(c.out, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state as JSON")
	cmd.Flags().BoolVar(&events, "events", false, "print the persisted progress events instead")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent persisted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(c.out, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func printRuns(w io.Writer, runs []db.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tMODE\tSTARTED\tQUERY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Status, r.Mode, r.StartedAt.Format(time.RFC3339), r.Query)
	}
	_ = tw.Flush()
}

func printEventLogs(w io.Writer, logs []db.EventLog) {
	for _, l := range logs {
		var e research.Event
		if err := json.Unmarshal(l.Payload, &e); err != nil {
			fmt.Fprintf(w, "%4d %s\n", l.Seq, l.Type)
			continue
		}
		fmt.Fprintf(w, "%4d ", l.Seq)
		printProgress(w, e)
	}
}
