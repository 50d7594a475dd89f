package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/hrmon/internal/storage"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the heart_rate table (or influx bucket) if absent",
	Long: `Initializes the configured storage. Safe to run repeatedly.

Examples:
  hrmon init-db --storage sqlite --dsn /var/lib/hrmon/hrmon.db
  HRMON_STORAGE_DSN=postgres://hrmon@db/hrmon hrmon init-db --storage postgres`,
	Args: cobra.NoArgs,
	RunE: runInitDB,
}

func init() {
	initDBCmd.Flags().String("storage", "", "Storage driver: sqlite, postgres, influxdb, memory")
	initDBCmd.Flags().String("dsn", "", "Storage DSN (sqlite file or postgres connection string)")
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyStorageFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg)
	cmd.SilenceUsage = true

	sink, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return err
	}
	if err := sink.Init(cmdContext(cmd)); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	// postgres DSNs may carry a password
	switch cfg.Storage.Driver {
	case storage.DriverSQLite:
		fmt.Fprintf(cmd.OutOrStdout(), "Storage ready: %s (%s)\n", cfg.Storage.Driver, cfg.Storage.DSN)
	case storage.DriverInfluxDB:
		fmt.Fprintf(cmd.OutOrStdout(), "Storage ready: %s (%s bucket %s)\n", cfg.Storage.Driver, cfg.Storage.Influx.URL, cfg.Storage.Influx.Bucket)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Storage ready: %s\n", cfg.Storage.Driver)
	}
	return nil
}
