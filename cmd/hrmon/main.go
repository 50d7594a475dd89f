package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hrmon",
	Short: "Patient heart-rate monitor",
	Long: `Patient heart-rate monitor for Bluetooth Low Energy sensors:

- Read the heart-rate characteristic on demand or on a poll interval
- Store every reading (sqlite, postgres, influxdb)
- Flag readings outside the configured range, or by a Lua rule script
- Show readings in a desktop window or a terminal shell
- Publish samples over HTTP/WebSocket and a PTY serial line`,
	Version: formatVersion(version),
}

func main() {
	exitWith(rootCmd.Execute())
}

// exitWith terminates the process for err; a nil or cancelled err exits 0
func exitWith(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		// Ctrl+C is a normal exit, not an error
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
	os.Exit(1)
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("hrmon {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(scanCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
