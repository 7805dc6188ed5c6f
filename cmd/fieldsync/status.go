package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <building-id>",
	Short: "Show the compliance summary for one building",
	Long: `Status loads the building's compliance summary, serving cached data
when it is fresh and fetching from the open-data feeds otherwise.`,
	Example: `  fieldsync status MN-01-0042
  fieldsync status MN-01-0042 --refresh
  fieldsync status MN-01-0042 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusRefresh bool

func init() {
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false,
		"Bypass the cache and fetch fresh data")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	buildingID := args[0]

	load := engine.Coordinator.LoadBuilding
	if statusRefresh {
		load = engine.Coordinator.Refresh
	}

	summary, err := load(context.Background(), buildingID)
	if err != nil {
		if jsonOutput {
			printJSON(map[string]any{"success": false, "building_id": buildingID, "error": err.Error()})
		} else {
			printError("Load failed: %v", err)
		}
		return err
	}

	if jsonOutput {
		printJSON(summary)
		return nil
	}

	fmt.Printf("Building %s\n", summary.BuildingID)
	fmt.Printf("  Score:      %s\n", scoreBand(summary.ComplianceScore))
	fmt.Printf("  Trend:      %s\n", summary.Trend)
	fmt.Printf("  Violations: %d total, %d open, %d critical\n",
		summary.TotalViolations, summary.OpenViolations, summary.CriticalViolations)
	fmt.Printf("  Fines:      $%.2f\n", summary.TotalFines)
	fmt.Printf("  Cached at:  %s\n", summary.CachedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
