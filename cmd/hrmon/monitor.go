package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/hrmon/internal/console"
	"github.com/srg/hrmon/internal/gui"
	"github.com/srg/hrmon/internal/monitor"
	"github.com/srg/hrmon/internal/ptyio"
	"github.com/srg/hrmon/internal/visualizer"
	"github.com/srg/hrmon/pkg/config"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the monitor with a desktop window or a terminal shell",
	Long: `Runs the monitor until the window is closed or q is pressed.

Every reading is stored, classified and shown. Press the Read button (or r in
the terminal shell) to read on demand; --interval polls in the background.

Examples:
  # Desktop window, on-demand reads
  hrmon monitor --address AA:BB:CC:DD:EE:FF

  # Terminal shell polling every 5 seconds, connection kept open
  hrmon monitor --shell console --interval 5s --connection persistent

  # Publish samples over HTTP/WebSocket and a serial line
  hrmon monitor --listen :8080 --pty /tmp/hrmon-tty`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("shell", "", "Shell: gui or console (default from config, gui)")
	monitorCmd.Flags().String("address", "", "Device address (overrides config)")
	monitorCmd.Flags().String("service", "", "Service UUID (optional)")
	monitorCmd.Flags().String("char", "", "Characteristic UUID (default 2a37)")
	monitorCmd.Flags().String("connection", "", "Connection policy: per-fetch or persistent")
	monitorCmd.Flags().Duration("interval", 0, "Poll interval, 0 reads on demand only")
	monitorCmd.Flags().String("storage", "", "Storage driver: sqlite, postgres, influxdb, memory")
	monitorCmd.Flags().String("dsn", "", "Storage DSN (sqlite file or postgres connection string)")
	monitorCmd.Flags().String("listen", "", "Serve the live feed on this address (e.g. :8080)")
	monitorCmd.Flags().String("pty", "", "Mirror events to a PTY and symlink it at this path")
}

// applyMonitorFlags copies explicitly set monitor flags over cfg
func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	applyDeviceFlags(cmd, cfg)
	applyStorageFlags(cmd, cfg)

	flags := cmd.Flags()
	if flags.Changed("shell") {
		cfg.Monitor.Shell, _ = flags.GetString("shell")
	}
	if flags.Changed("connection") {
		cfg.Monitor.Connection, _ = flags.GetString("connection")
	}
	if flags.Changed("interval") {
		cfg.Monitor.PollInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("listen") {
		cfg.Visualizer.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("pty") {
		cfg.Monitor.PTYLink, _ = flags.GetString("pty")
	}
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyMonitorFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := configureLogger(cmd, cfg)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}

	vis := visualizer.New(cfg.Visualizer, s.pipeline.Range(), logger)

	useGUI := cfg.Monitor.Shell == config.ShellGUI
	if useGUI && !gui.Available {
		logger.Warn("Built without GUI support, falling back to the console shell")
		useGUI = false
	}

	var shell monitor.Shell
	if useGUI {
		window, err := gui.New(vis, logger)
		if err != nil {
			s.Close()
			return err
		}
		shell = window
	} else {
		shell = console.New(console.Options{
			In:     cmd.InOrStdin(),
			Out:    cmd.OutOrStdout(),
			Colors: !color.NoColor,
			Logger: logger,
		})
	}

	app, err := monitor.NewApp(monitor.Options{
		Fetcher:       s.fetcher,
		Sink:          s.sink,
		Shell:         shell,
		PollInterval:  cfg.Monitor.PollInterval,
		EventCapacity: cfg.Monitor.EventCapacity,
		Logger:        logger,
	})
	if err != nil {
		s.Close()
		return err
	}

	app.AddService(vis)
	app.Observe(vis.Observe)

	if cfg.Monitor.PTYLink != "" {
		bridge, err := ptyio.Open(ptyio.Options{Link: cfg.Monitor.PTYLink, Logger: logger})
		if err != nil {
			s.Close()
			return err
		}
		app.AddService(bridge)
		app.Observe(bridge.Observe)
	}

	logger.WithFields(logrus.Fields{
		"address":   cfg.Device.Address,
		"char_uuid": cfg.Device.CharUUID,
		"driver":    cfg.Storage.Driver,
		"shell":     cfg.Monitor.Shell,
		"interval":  cfg.Monitor.PollInterval.String(),
	}).Info("Starting monitor")

	if !useGUI {
		defer s.Close()
		return app.Run(ctx)
	}

	// the window toolkit owns the main goroutine and never returns from Main
	go func() {
		start := time.Now()
		err := app.Run(ctx)
		s.Close()
		logger.WithField("uptime", time.Since(start).Round(time.Second).String()).Debug("Monitor exited")
		exitWith(err)
	}()
	gui.Main()
	return nil
}
