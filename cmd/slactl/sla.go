package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/splax/slaguard/pkg/client"
)

func newSLACommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Provision SLA definitions and inspect compliance",
	}

	var serviceID string
	provision := &cobra.Command{
		Use:   "provision",
		Short: "Create the standard availability SLA for a service (global when --service is empty)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			def, err := cli.CreateDefaultSLA(ctx, serviceID)
			if err != nil {
				return err
			}
			printDefinition(cmd.OutOrStdout(), def)
			return nil
		},
	}
	provision.Flags().StringVar(&serviceID, "service", "", "Service identifier")

	var (
		name   string
		target string
		window string
	)
	supersede := &cobra.Command{
		Use:   "supersede DEFINITION_ID",
		Short: "Close a definition and create its next version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.SupersedeRequest{Name: name, Window: window}
			if target != "" {
				v, err := strconv.ParseFloat(target, 64)
				if err != nil {
					return fmt.Errorf("--target must be a number: %w", err)
				}
				req.Target = &v
			}
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			def, err := cli.Supersede(ctx, args[0], req)
			if err != nil {
				return err
			}
			printDefinition(cmd.OutOrStdout(), def)
			return nil
		},
	}
	supersede.Flags().StringVar(&name, "name", "", "New definition name")
	supersede.Flags().StringVar(&target, "target", "", "New target value")
	supersede.Flags().StringVar(&window, "window", "", "New compliance window (7d|30d|90d)")

	var day string
	snapshot := &cobra.Command{
		Use:   "snapshot DEFINITION_ID",
		Short: "Compute the daily snapshot of one definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			snap, err := cli.GenerateSnapshot(ctx, args[0], day)
			if err != nil {
				return err
			}
			printSnapshots(cmd.OutOrStdout(), []client.Snapshot{snap})
			return nil
		},
	}
	snapshot.Flags().StringVar(&day, "date", "", "UTC day (YYYY-MM-DD, default today)")

	var from, to string
	history := &cobra.Command{
		Use:   "snapshots DEFINITION_ID",
		Short: "List stored snapshots of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			rows, err := cli.ListSnapshots(ctx, args[0], from, to)
			if err != nil {
				return err
			}
			printSnapshots(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	history.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD, default 30 days back)")
	history.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD, default today)")

	var asOf string
	report := &cobra.Command{
		Use:   "report DEFINITION_ID",
		Short: "Aggregate snapshots over the definition's compliance window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			r, err := cli.Report(ctx, args[0], asOf)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), r)
			return nil
		},
	}
	report.Flags().StringVar(&asOf, "as-of", "", "Window end day (YYYY-MM-DD, default today)")

	cmd.AddCommand(provision, supersede, snapshot, history, report)
	return cmd
}

func newSnapshotsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Run snapshot generation across definitions",
	}
	var day string
	run := &cobra.Command{
		Use:   "run",
		Short: "Generate snapshots for every definition live on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			result, err := cli.RunSnapshots(ctx, day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, outcome := range result.Outcomes {
				switch {
				case outcome.Error != "":
					fmt.Fprintf(out, "%s\tfailed\t%s\n", outcome.DefinitionID, outcome.Error)
				case outcome.Snapshot == nil:
					fmt.Fprintf(out, "%s\tskipped\n", outcome.DefinitionID)
				default:
					fmt.Fprintf(out, "%s\tok\t%.4f\tbreaches=%d\n", outcome.DefinitionID, outcome.Snapshot.UptimePercentage, outcome.Snapshot.BreachCount)
				}
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d snapshots failed for %s", result.Failed, len(result.Outcomes), result.Date)
			}
			return nil
		},
	}
	run.Flags().StringVar(&day, "date", "", "UTC day (YYYY-MM-DD, default today)")
	cmd.AddCommand(run)
	return cmd
}

func printDefinition(w io.Writer, def client.Definition) {
	scope := "global"
	if def.ServiceID != nil {
		scope = *def.ServiceID
	}
	fmt.Fprintf(w, "%s\tv%d\t%s\t%s\t%s\t%.4f\t%s\n", def.ID, def.Version, scope, def.MetricType, def.Window, def.Target, def.Name)
}

func printSnapshots(w io.Writer, rows []client.Snapshot) {
	for _, snap := range rows {
		fmt.Fprintf(w, "%s\t%.4f\ttotal=%d\terrors=%d\tbreaches=%d\n",
			snap.Date, snap.UptimePercentage, snap.TotalEvents, snap.ErrorEvents, snap.BreachCount)
	}
}

func printReport(w io.Writer, r client.Report) {
	status := "COMPLIANT"
	if !r.Compliant {
		status = "BREACHED"
	}
	fmt.Fprintf(w, "%s %s over %s (%s to %s)\n", r.DefinitionID, r.MetricType, r.Window, r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
	fmt.Fprintf(w, "value %.4f target %.4f %s\n", r.Value, r.Target, status)
	fmt.Fprintf(w, "days covered %d/%d, breach days %d, events %d, errors %d\n",
		r.DaysCovered, r.DaysInWindow, r.BreachDays, r.TotalEvents, r.ErrorEvents)
}
