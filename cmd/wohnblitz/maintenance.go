package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/jonathan/wohnblitz/internal/bot"
	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/maintenance"
	"github.com/jonathan/wohnblitz/internal/observability"
	"github.com/spf13/cobra"
)

var maintenanceJSON bool

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run one maintenance pass against the database",
	Long: `Deletes bot logs older than the retention period and recomputes the
24-hour activity figures. Bot health is not checked since no bots run in this
process; use GET /monitoring/report on a running server for that.`,
	RunE: runMaintenance,
}

func init() {
	maintenanceCmd.Flags().BoolVar(&maintenanceJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(maintenanceCmd)
}

// noBots is the fleet of a process that runs no bots.
type noBots struct{}

func (noBots) AllStatuses() []bot.Metrics { return nil }
func (noBots) Overview() bot.Overview     { return bot.Overview{StatusCounts: map[bot.Status]int{}} }

func runMaintenance(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	registry := observability.NewRegistry()
	report := maintenance.New(database, noBots{}, registry, cfg.MaintenanceOptions()).RunOnce(ctx)

	return printReport(cmd, report, registry.Snapshot())
}

func printReport(cmd *cobra.Command, report maintenance.Report, snap observability.Snapshot) error {
	out := cmd.OutOrStdout()
	if maintenanceJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	observability.NewPrinter(out).PrintMetrics(snap)
	fmt.Fprintf(out, "Deleted %d old log entries, %d applications are older than a year\n",
		report.LogsDeleted, report.OldApplications)
	for _, task := range slices.Sorted(maps.Keys(report.Failures)) {
		fmt.Fprintf(out, "Task %s failed: %s\n", task, report.Failures[task])
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d maintenance tasks failed", len(report.Failures))
	}
	return nil
}
