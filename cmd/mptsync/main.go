// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for mptsync using the
// Cobra library. It defines the root command, subcommands (sync, archive,
// mirror, trust-host, history), flags, and the main entry point.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mypytutor/mptsync/buildvars"
	"github.com/mypytutor/mptsync/internal/config"
	"github.com/mypytutor/mptsync/internal/db"
	"github.com/mypytutor/mptsync/internal/i18n"
	"github.com/mypytutor/mptsync/internal/logging"
)

var cfgFile string

var rootCmd *cobra.Command

// main is the entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

func init() {
	rootCmd = newRootCmd()
}

// newRootCmd creates and configures a new root cobra command.
// This function is used to create the main application command as well as
// fresh instances for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mptsync",
		Short: "mptsync publishes MyPyTutor releases to the course server.",
		Long: `mptsync rebuilds the MyPyTutor tutorial package and application
archive, uploads them together with the current version marker, keeps the
server-side submission state in sync, and mirrors the CGI scripts and help
pages onto the course server. All remote traffic runs over SFTP against one
fixed host, throttled to respect the server's login rate limit.`,
		SilenceUsage: true,
	}

	// Add subcommands to the newly created root command.
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newArchiveCmd())
	cmd.AddCommand(newMirrorCmd())
	cmd.AddCommand(newTrustHostCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newInitCmd())

	// Set version
	cmd.Version = buildvars.VersionOrDefault("dev")

	// Define flags
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is mptsync.yaml in the user config dir, /etc/mptsync or the current dir)")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("language", "en", `message language ("en", "de")`)

	return cmd
}

// loadConfig builds the effective configuration for a command and applies
// the ambient settings (language, debug logging).
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd, cfgFile)
	if err != nil {
		return cfg, fmt.Errorf(i18n.T("config.error_load"), err)
	}
	i18n.Init(cfg.Language)
	logging.SetDebug(cfg.Debug)
	return cfg, nil
}

// openStore opens the run-history database configured in cfg.
func openStore(cfg config.Config) (db.Store, error) {
	st, err := db.Open(cfg.History.Type, cfg.History.DSN)
	if err != nil {
		return nil, fmt.Errorf(i18n.T("config.error_init_db"), err)
	}
	return st, nil
}

// newInitCmd writes a default configuration file for editing.
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default mptsync.yaml config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.Mirrors) == 0 {
				cfg.Mirrors = config.DefaultMirrors()
			}
			system, _ := cmd.Flags().GetBool("system")
			if err := config.WriteConfigFile(&cfg, system); err != nil {
				return fmt.Errorf(i18n.T("config.error_write"), err)
			}
			logging.Infof("%s", i18n.T("config.written"))
			return nil
		},
	}
	cmd.Flags().Bool("system", false, "write the system-wide config instead of the user one")
	return cmd
}
