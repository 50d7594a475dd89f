package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/monitor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// readCmd performs a single connect-read-store cycle
var readCmd = &cobra.Command{
	Use:   "read [device-address]",
	Short: "Read, store and classify one heart-rate value",
	Long: `Connects to the sensor, reads the heart-rate characteristic once, stores
the value and reports whether it lies outside the configured range.

Examples:
  # Read using the address from the config file
  hrmon read --config hrmon.yaml

  # Read a specific sensor and print JSON
  hrmon read AA:BB:CC:DD:EE:FF --json

  # Read a non-standard characteristic without touching the database
  hrmon read AA:BB:CC:DD:EE:FF --char 2a19 --storage memory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRead,
}

var (
	readJSON    bool
	readNoStore bool
)

func init() {
	readCmd.Flags().String("address", "", "Device address (overrides config)")
	readCmd.Flags().String("service", "", "Service UUID (optional)")
	readCmd.Flags().String("char", "", "Characteristic UUID (default 2a37)")
	readCmd.Flags().String("storage", "", "Storage driver: sqlite, postgres, influxdb, memory")
	readCmd.Flags().String("dsn", "", "Storage DSN (sqlite file or postgres connection string)")
	readCmd.Flags().BoolVar(&readJSON, "json", false, "Print the result as JSON")
	readCmd.Flags().BoolVar(&readNoStore, "no-store", false, "Do not store the reading (same as --storage memory)")
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyDeviceFlags(cmd, cfg)
	applyStorageFlags(cmd, cfg)
	if len(args) == 1 {
		cfg.Device.Address = args[0]
	}
	if readNoStore {
		cfg.Storage.Driver = "memory"
	}
	// a single read never keeps the connection
	cfg.Monitor.Connection = string(monitor.PolicyPerFetch)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := configureLogger(cmd, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(),
		fmt.Sprintf("Reading %s from %s", device.DisplayName(cfg.Device.CharUUID), cfg.Device.Address),
		device.PhaseConnecting, device.PhaseDone, device.PhaseFailed)

	s, err := newSession(ctx, cfg, logger, monitor.WithProgress(progress.Callback()))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.sink.Init(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	progress.Start()
	result, err := s.fetcher.Fetch(ctx)
	progress.Stop()
	if err != nil {
		return err
	}

	if readJSON {
		return printResultJSON(cmd, cfg.Device.CharUUID, s.pipeline.Range().String(), result)
	}
	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, r monitor.Result) {
	if r.Anomaly {
		fmt.Fprintf(cmd.OutOrStdout(), "%d bpm (ANOMALY)\n", r.Value)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d bpm\n", r.Value)
}

// printResultJSON keeps a stable key order so the output diffs cleanly
func printResultJSON(cmd *cobra.Command, char, rng string, r monitor.Result) error {
	out := orderedmap.New[string, any]()
	out.Set("address", r.Address)
	out.Set("char", device.NormalizeUUID(char))
	out.Set("value", uint64(r.Value))
	if r.Raw != r.Value {
		out.Set("raw", uint64(r.Raw))
	}
	out.Set("anomaly", r.Anomaly)
	out.Set("range", rng)
	out.Set("read_at", r.ReadAt.UTC().Format(time.RFC3339))

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// cmdContext returns the command context, Background when executed without one
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
