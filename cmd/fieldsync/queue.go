package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the offline sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending sync queue entries",
	RunE:  runQueueList,
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Push pending mutations to the server of record",
	RunE:  runQueueProcess,
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move failed records back to pending",
	RunE:  runQueueRequeue,
}

var saveData string

var queueSaveCmd = &cobra.Command{
	Use:   "save <record-id>",
	Short: "Save an offline record mutation",
	Long: `Save stores a local mutation durably and enqueues it for sync.
The record syncs on the next queue drain with connectivity.`,
	Example: `  fieldsync queue save insp-2026-0311 --data '{"status":"in_progress","notes":"crew on site"}'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runQueueSave,
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <record-id>",
	Short: "Delete an offline record and enqueue the deletion",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueDelete,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueProcessCmd, queueRequeueCmd, queueSaveCmd, queueDeleteCmd)

	queueSaveCmd.Flags().StringVarP(&saveData, "data", "d", "", "Record payload as JSON (required)")
	_ = queueSaveCmd.MarkFlagRequired("data")
}

func runQueueList(cmd *cobra.Command, args []string) error {
	entries := engine.Queue.PendingEntries()

	if jsonOutput {
		printJSON(entries)
		return nil
	}

	if len(entries) == 0 {
		printInfo("Sync queue is empty")
		return nil
	}

	fmt.Printf("%d queued:\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %-6s %-30s retries=%d/%d enqueued=%s\n",
			e.Action, e.RecordID, e.RetryCount, e.MaxRetries,
			e.EnqueuedAt.Local().Format("15:04:05"))
	}
	return nil
}

func runQueueProcess(cmd *cobra.Command, args []string) error {
	result, err := engine.Queue.ProcessQueue(context.Background(), engine.Pusher)
	if err != nil {
		printError("Queue drain failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}

	printSuccess("Synced %d, failed %d", result.Synced, result.Failed)
	for _, c := range result.Conflicts {
		printWarning("  conflict on %s.%s resolved to %s", c.RecordID, c.Field, c.Resolution)
	}
	return nil
}

func runQueueRequeue(cmd *cobra.Command, args []string) error {
	requeued, err := engine.Queue.RequeueFailed()
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]any{"requeued": requeued})
		return nil
	}
	printSuccess("Requeued %d record(s)", requeued)
	return nil
}

func runQueueSave(cmd *cobra.Command, args []string) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(saveData), &payload); err != nil {
		return fmt.Errorf("parse --data: %w", err)
	}

	rec, err := engine.Queue.SaveRecord(args[0], payload)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(rec)
		return nil
	}
	printSuccess("Saved %s (local version %d, %s)", rec.ID, rec.LocalVersion, rec.SyncStatus)
	return nil
}

func runQueueDelete(cmd *cobra.Command, args []string) error {
	if err := engine.Queue.DeleteRecord(args[0]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]any{"deleted": args[0]})
		return nil
	}
	printSuccess("Deleted %s, deletion queued for sync", args[0])
	return nil
}
