package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brickops/fieldsync/internal/client"
	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
)

var (
	cfgPath    string
	jsonOutput bool
	verbose    bool

	cfg    *config.Config
	logger *events.Logger
	engine *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first compliance engine for NYC field operations",
	Long: `Fieldsync keeps building compliance data usable in the field:
violations, inspections, and permits are cached locally with TTLs,
offline mutations queue for sync, and a live refresh loop feeds the
office dashboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgPath).Load()
		if err != nil {
			return err
		}

		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = events.NewLogger(&cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		events.SetDefault(logger)

		engine, err = client.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("initialize engine: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if engine != nil {
			return engine.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Config file path (default searches ./fieldsync.yaml, ~/.config/fieldsync)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}
