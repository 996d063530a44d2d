// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/aethr/ramroot/internal/block"
	"github.com/aethr/ramroot/internal/boot"
	"github.com/aethr/ramroot/internal/log"
	"github.com/aethr/ramroot/internal/zram"
)

func newMigrateCommand(opts *options) *cobra.Command {
	var cmdlinePath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move the root filesystem into RAM and record the handoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmdlinePath)
			if err != nil {
				return err
			}

			logger, closeLog, err := log.New(log.Options{
				Dir:   cfg.LogDir,
				Debug: cfg.Debug,
			})
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			ctx, stop := signal.NotifyContext(
				cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()

			migrator := &boot.Migrator{
				Config:      cfg,
				Log:         logger,
				Runner:      block.ExecRunner{},
				Provisioner: zram.NewProvisioner(logger),
			}

			return migrator.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&cmdlinePath,
		"cmdline", "/proc/cmdline",
		"kernel command line to parse, empty to skip")

	return cmd
}
