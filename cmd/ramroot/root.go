// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/aethr/ramroot/internal/config"
)

const defaultConfigPath = "/etc/ramroot.conf"

// options are the persistent flags shared by all subcommands.
type options struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ramroot",
		Short: "Migrate the root filesystem onto a compressed RAM device",
		Long: "ramroot moves a live root filesystem onto a zram block " +
			"device during early boot.\nAny failure falls back to the " +
			"normal disk boot.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath,
		"config", "c", defaultConfigPath, "configuration file")
	cmd.PersistentFlags().BoolVar(&opts.debug,
		"debug", false, "enable debug logging")

	cmd.AddCommand(
		newMigrateCommand(opts),
		newPlanCommand(opts),
		newStatusCommand(opts),
	)

	return cmd
}

// loadConfig layers defaults, the config file and, when cmdlinePath is
// not empty, the kernel command line. A missing config file is fine,
// everything has a default.
func (o *options) loadConfig(cmdlinePath string) (*config.Config, error) {
	cfg := config.New()

	if err := cfg.LoadFile(o.configPath); err != nil {
		return nil, err
	}

	if cmdlinePath != "" {
		if err := cfg.LoadCmdline(cmdlinePath); err != nil {
			return nil, err
		}
	}

	if o.debug {
		cfg.Debug = true
	}

	return cfg, nil
}
