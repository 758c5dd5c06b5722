package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rpanode/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the extraction node in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "Run a single extraction cycle and exit")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, flow, and cycle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return wrapAPIError(err, cfg)
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var lines []string
			lines = append(lines, nodeLines(*status, colorize)...)
			lines = append(lines, "")
			lines = append(lines, flowLines(status.Flow, colorize)...)
			lines = append(lines, "")
			lines = append(lines, stageHealthLines(status.StageHealth, colorize)...)
			lines = append(lines, "")
			lines = append(lines, dependencyLines(status.Dependencies, colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if table := taskTable(status.Cycle.LastCycle); table != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Last cycle")
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent flow runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			runs, err := client.Runs(cmd.Context(), limit)
			if err != nil {
				return wrapAPIError(err, cfg)
			}
			if jsonOut {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, runsTable(runs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func newInterruptCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt",
		Short: "Stop the flow that is currently running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Interrupt(cmd.Context())
			if err != nil {
				return wrapAPIError(err, cfg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}
