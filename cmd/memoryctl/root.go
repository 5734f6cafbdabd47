// Package main is memoryctl, the administrative CLI for the memory service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"devmemory-be/internal/bootstrap"
	"devmemory-be/internal/config"
	"devmemory-be/internal/pkg/logger"
	"devmemory-be/pkg/database"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	verbose    bool
	configFile string

	cfg       *config.Config
	container *bootstrap.Container
)

var rootCmd = &cobra.Command{
	Use:   "memoryctl",
	Short: "Administer the session memory service",
	Long: `memoryctl runs maintenance operations against the memory database:
sweeping stale sessions, re-embedding stored context, reconciling counters
and managing projects.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if configFile != "" {
			if err := cfg.MergeFile(configFile); err != nil {
				return fmt.Errorf("loading %s: %w", configFile, err)
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var db *gorm.DB
		if cfg.Database.Driver != "memory" {
			var err error
			if db, err = database.NewGormDBFromDSN(cfg.Database.Connection, verbose); err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
		}

		var err error
		container, err = bootstrap.NewContainer(cfg, bootstrap.Options{
			DB:       db,
			Logger:   logger.NewConsoleLogger(verbose),
			SyncJobs: true,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if container != nil {
			container.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and SQL output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config overlay")

	rootCmd.AddCommand(sweepCmd, reembedCmd, reconcileCmd, projectCmd, sessionCmd, opsCmd, eventsCmd)
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// dispatch runs a registry operation and prints its result as JSON.
func dispatch(ctx context.Context, name string, input interface{}) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	out, err := container.Registry.Dispatch(ctx, name, raw)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
