// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mypytutor/mptsync/internal/archive"
	"github.com/mypytutor/mptsync/internal/config"
	"github.com/mypytutor/mptsync/internal/i18n"
	"github.com/mypytutor/mptsync/internal/logging"
	"github.com/mypytutor/mptsync/internal/mirror"
	"github.com/mypytutor/mptsync/internal/state"
)

// newArchiveCmd rebuilds the application archive without publishing it.
func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Rebuild the application archive locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b := archive.NewBuilder(nil)
			if err := b.BuildAppArchive(cfg.Paths.WorkDir, cfg.Paths.AppArchive, cfg.Paths.AppSourceDir, cfg.Paths.AppTopFiles); err != nil {
				return fmt.Errorf(i18n.T("archive.error_build"), err)
			}
			logging.Infof("%s", i18n.T("archive.built", cfg.Paths.AppArchive))
			return nil
		},
	}
}

// newMirrorCmd runs a single configured mirror pair.
func newMirrorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mirror <name>",
		Short: "Mirror one configured directory pair to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var pair *config.MirrorPair
			for i := range cfg.Mirrors {
				if cfg.Mirrors[i].Name == args[0] {
					pair = &cfg.Mirrors[i]
					break
				}
			}
			if pair == nil {
				return fmt.Errorf(i18n.T("mirror.error_unknown"), args[0])
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			defer state.PassphraseCache.Clear()

			dialer, err := newDialer(cfg, st)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if cmd.Context() != nil {
				ctx = cmd.Context()
			}
			c, err := dialer.Dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			local := pair.Local
			if !filepath.IsAbs(local) {
				local = filepath.Join(cfg.Paths.WorkDir, local)
			}
			if err := mirror.NewMirrorer(nil).Mirror(ctx, c, local, pair.Remote); err != nil {
				return fmt.Errorf(i18n.T("mirror.error_sync"), pair.Name, err)
			}
			logging.Infof("%s", i18n.T("mirror.synced", pair.Name, pair.Remote))
			return nil
		},
	}
}
