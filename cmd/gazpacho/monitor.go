package main

import (
	"fmt"
	"time"

	"github.com/dsh2dsh/go-monitoringplugin/v2"
	"github.com/spf13/cobra"

	"github.com/andoriyu/gazpacho/client/monitor"
	"github.com/andoriyu/gazpacho/internal/history"
)

var (
	monitorWarn time.Duration
	monitorCrit time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <task>",
	Short: "Nagios-style freshness check for one task's last run",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitor,
}

func init() {
	f := monitorCmd.Flags()
	f.DurationVar(&monitorWarn, "warn", 26*time.Hour, "warn if the last run started more than this long ago")
	f.DurationVar(&monitorCrit, "crit", 48*time.Hour, "critical if the last run started more than this long ago")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := history.Open(cfg.Daemon.Database)
	if err != nil {
		return fmt.Errorf("open history store at %q: %w", cfg.Daemon.Database, err)
	}
	defer store.Close()

	resp := monitoringplugin.NewResponse("gazpacho monitor")
	check := monitor.NewTaskCheck(store, resp).WithThresholds(monitorWarn, monitorCrit)
	if err := check.Run(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("run check: %w", err)
	}

	resp.OutputAndExit()
	return nil
}
