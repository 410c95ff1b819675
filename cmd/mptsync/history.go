// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mypytutor/mptsync/internal/db"
	"github.com/mypytutor/mptsync/internal/i18n"
	"github.com/mypytutor/mptsync/internal/logging"
)

// historyCmd is the root `history` command.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and back up past publishing runs",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryExportCmd())
	cmd.AddCommand(newHistoryImportCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.GetAllRuns()
			if err != nil {
				return fmt.Errorf(i18n.T("history.error_list"), err)
			}
			if len(runs) == 0 {
				fmt.Println(i18n.T("history.empty"))
				return nil
			}

			fmt.Printf("%-5s %-20s %-9s %-22s %s\n", "ID", "STARTED", "STATUS", "FAILED STEP", "VERSION")
			for _, r := range runs {
				fmt.Printf("%-5d %-20s %-9s %-22s %s\n",
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					r.Status,
					r.FailedStep,
					r.Version,
				)
			}
			return nil
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf(i18n.T("history.error_bad_id"), args[0])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			steps, err := st.GetStepsForRun(id)
			if err != nil {
				return fmt.Errorf(i18n.T("history.error_list"), err)
			}
			if len(steps) == 0 {
				fmt.Println(i18n.T("history.no_steps", id))
				return nil
			}
			for _, s := range steps {
				line := fmt.Sprintf("%2d. %-24s %-8s %s", s.Seq, s.Name, s.Status, s.Duration.Round(time.Millisecond))
				if s.Error != "" {
					line += "  " + s.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Create a compressed (zstd) JSON backup of the history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf(i18n.T("history.error_create_backup"), err)
			}
			defer f.Close()

			if err := db.Backup(f, st); err != nil {
				return err
			}
			logging.Infof("%s", i18n.T("history.exported", args[0]))
			return nil
		},
	}
}

func newHistoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore the history database from a backup, replacing its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf(i18n.T("history.error_open_backup"), err)
			}
			defer f.Close()

			if err := db.Restore(f, st); err != nil {
				return err
			}
			logging.Infof("%s", i18n.T("history.imported", args[0]))
			return nil
		},
	}
}
