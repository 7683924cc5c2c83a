// Command gazpacho is the daemon entrypoint (spec.md §6). The daemon
// itself runs subcommand-free as `gazpacho --config ...`; `monitor` and
// `status` are auxiliary read-only CLI surfaces added by SPEC_FULL.md's
// expansion, following the teacher's cobra root+subcommand layout
// (pg-migrator's cmd/pgmigrator/root.go).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andoriyu/gazpacho/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gazpacho",
	Short: "ZFS snapshot and replication daemon",
	Long: `gazpacho periodically snapshots configured ZFS datasets and streams
full or incremental sends to local or SFTP destinations, tracking run
history in an embedded SQLite store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "path to the gazpacho YAML config (or $GAZPACHO_CONFIG)")
	rootCmd.AddCommand(monitorCmd, statusCmd)
}

func loadConfig() (*config.Config, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}

	path := configPath
	if path == "" {
		path = env.ConfigPath
	}
	if path == "" {
		path = "/etc/gazpacho/config.yaml"
	}

	cfg, dropped, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, name := range dropped {
		fmt.Fprintf(os.Stderr, "warning: task %q references an unknown destination, dropped\n", name)
	}

	if env.Database != "" {
		cfg.Daemon.Database = env.Database
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
