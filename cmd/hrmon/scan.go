package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find nearby heart-rate sensors",
	Long: `Listens for BLE advertisements and lists peripherals that advertise the
Heart Rate service, strongest signal first. Use the address with --address or
device.address in the config file.

Examples:
  hrmon scan
  hrmon scan --duration 30s --all
  hrmon scan --json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAll      bool
	scanJSON     bool
)

func init() {
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 10*time.Second, "How long to listen")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every peripheral, not only heart-rate sensors")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the result as JSON")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanDuration <= 0 {
		return fmt.Errorf("invalid scan duration: %v", scanDuration)
	}
	logger := configureLogger(cmd, cfg)
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for heart-rate sensors", scanner.PhaseScanning, device.PhaseDone, device.PhaseFailed)
	progress.Start()
	defer progress.Stop()

	sc := scanner.NewScanner(logger)
	defer sc.Close()

	found, err := sc.Scan(ctx, scanner.Options{Duration: scanDuration, All: scanAll}, progress.Callback())
	progress.Stop()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		data, err := json.MarshalIndent(found, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode scan result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(found) == 0 {
		fmt.Fprintln(out, "No heart-rate sensors found")
		return nil
	}
	for _, d := range found {
		fmt.Fprintln(out, d.String())
	}
	return nil
}
