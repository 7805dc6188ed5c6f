package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var watchBuildings []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the live refresh loop and dashboard endpoint",
	Long: `Watch refreshes all tracked buildings on an interval and serves
snapshots to dashboard clients over a websocket endpoint at /ws.
Buildings come from config plus any --building flags.`,
	Example: `  fieldsync watch --building MN-01-0042 --building BK-02-0007
  fieldsync watch --json`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVarP(&watchBuildings, "building", "b", nil,
		"Building to track (repeatable, adds to config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	for _, id := range watchBuildings {
		engine.Scheduler.Track(id)
	}

	if len(engine.Scheduler.Tracked()) == 0 {
		return errors.New("no buildings to track; use --building or refresh.buildings in config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		printWarning("\nShutting down...")
		cancel()
	}()

	go engine.Hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/ws", engine.Hub)

	server := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Dashboard.Addr).Info("Dashboard endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Dashboard server failed")
			cancel()
		}
	}()

	printInfo("Watching %d building(s), refresh every %s",
		len(engine.Scheduler.Tracked()), cfg.Refresh.Interval)

	err := engine.Scheduler.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	printSuccess("Watch stopped")
	return nil
}
