package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/app"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/runner"
)

type runFlags struct {
	concurrency int
	maxTools    int
	json        bool
}

func (c *cli) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run a research query in process and print the report",
		Example: `  toolscout run "vector databases"
  toolscout run --concurrency 4 --max-tools 8 "feature flag services"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResearch(cmd.Context(), strings.Join(args, " "), f)
		},
	}
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "tools researched in parallel (default from config)")
	cmd.Flags().IntVar(&f.maxTools, "max-tools", 0, "maximum tools to research (default from config)")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the final state as JSON")
	return cmd
}

func (c *cli) runResearch(ctx context.Context, query string, f runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers app.Closer
	defer func() { _ = closers.Close() }()

	rw, err := app.OpenRedis(ctx, c.cfg.Redis, c.logger)
	if err != nil {
		c.logger.Warn("Redis unavailable, running without cache", zap.Error(err))
	}
	if rw != nil {
		closers.Add(rw.Close)
	}
	collab, err := app.NewCollaborators(c.cfg, rw, c.logger)
	if err != nil {
		return err
	}

	opts := runner.Options{Timeout: c.cfg.Service.RunTimeout}
	if !f.json {
		opts.Sink = research.SinkFunc(func(e research.Event) { printProgress(c.out, e) })
	}
	store, err := app.OpenDatabase(c.cfg.Database, c.logger)
	if err != nil {
		c.logger.Warn("Run store unavailable, results will not be persisted", zap.Error(err))
	}
	if store != nil {
		closers.Add(store.Close)
		opts.Store = store
	}

	settings := c.cfg.Research.Settings
	r := runner.New(collab, func() research.Settings { return settings }, c.logger, opts)
	overrides := &research.Settings{Concurrency: f.concurrency, MaxTools: f.maxTools}
	state, runErr := r.Run(ctx, runner.NewRunID(), query, overrides, "cli")
	if state == nil {
		return runErr
	}

	if f.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reportOf(state)); err != nil {
			return err
		}
	} else {
		printReport(c.out, state)
	}
	if runErr != nil {
		return fmt.Errorf("run %s failed: %s", state.RunID, state.FailureReason)
	}
	return nil
}

type report struct {
	*research.ResearchState
	Summary research.Summary `json:"summary"`
}

func reportOf(s *research.ResearchState) report {
	return report{ResearchState: s, Summary: research.Summarize(s)}
}
