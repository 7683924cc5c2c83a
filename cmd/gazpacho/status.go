package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andoriyu/gazpacho/client/status"
	"github.com/andoriyu/gazpacho/internal/history"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Live dashboard of recent task runs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := history.Open(cfg.Daemon.Database)
	if err != nil {
		return fmt.Errorf("open history store at %q: %w", cfg.Daemon.Database, err)
	}
	defer store.Close()

	return status.Run(store)
}
