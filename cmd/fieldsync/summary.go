package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <building-id>...",
	Short: "Show an aggregated portfolio summary",
	Long: `Summary loads every listed building in rate-limited batches and
aggregates the results. Buildings that fail to load are reported but do
not abort the run.`,
	Example: `  fieldsync summary MN-01-0042 MN-01-0043 BK-02-0007`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	result, err := engine.Coordinator.LoadPortfolio(context.Background(), args)
	if err != nil {
		printError("Portfolio load failed: %v", err)
		return err
	}

	if jsonOutput {
		errs := make(map[string]string, len(result.Errors))
		for id, loadErr := range result.Errors {
			errs[id] = loadErr.Error()
		}
		printJSON(map[string]any{
			"summary": result.Summary,
			"errors":  errs,
		})
		return nil
	}

	s := result.Summary
	fmt.Printf("Portfolio (%d buildings, %d resolved)\n", s.BuildingCount, s.ResolvedCount)
	fmt.Printf("  Average score: %.1f\n", s.AverageScore)
	fmt.Printf("  Violations:    %d total, %d open, %d critical\n",
		s.TotalViolations, s.OpenViolations, s.CriticalViolations)
	fmt.Printf("  Fines:         $%.2f\n", s.TotalFines)

	if len(result.Errors) > 0 {
		ids := make([]string, 0, len(result.Errors))
		for id := range result.Errors {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		printWarning("\n%d building(s) failed to load:", len(ids))
		for _, id := range ids {
			printWarning("  %s: %v", id, result.Errors[id])
		}
	}
	return nil
}
