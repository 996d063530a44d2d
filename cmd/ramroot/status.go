// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aethr/ramroot/internal/boot"
	"github.com/aethr/ramroot/internal/zram"
)

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the root filesystem runs from RAM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig("")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			source, err := rootSource()
			if err != nil {
				return err
			}

			num, onZram := zramDeviceNum(source)
			if !onZram {
				fmt.Fprintf(out, "root on %s, not migrated\n", source)
				return nil
			}

			fmt.Fprintf(out, "root on %s\n", source)

			logger := logrus.New()
			logger.SetOutput(io.Discard)

			dev, err := zram.NewProvisioner(logger).Attach(num)
			if err != nil {
				return err
			}

			stats, err := dev.ReadStats()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "data:       %s\n",
				units.BytesSize(float64(stats.OrigDataBytes)))
			fmt.Fprintf(out, "compressed: %s (ratio %.2f)\n",
				units.BytesSize(float64(stats.ComprDataBytes)), stats.Ratio())
			fmt.Fprintf(out, "mem used:   %s\n",
				units.BytesSize(float64(stats.MemUsedBytes)))

			if record, err := boot.ReadHandoff(cfg.HandoffPath); err == nil {
				fmt.Fprintf(out, "handoff:    %s (%s)\n",
					record.Device, record.FSType)
			}

			return nil
		},
	}
}

// rootSource returns the mount source of the root filesystem.
func rootSource() (string, error) {
	infos, err := mountinfo.GetMounts(func(i *mountinfo.Info) (bool, bool) {
		return i.Mountpoint != "/", false
	})
	if err != nil {
		return "", fmt.Errorf("read mount table: %w", err)
	}

	if len(infos) == 0 {
		return "", errors.New("no root mount found")
	}

	return infos[0].Source, nil
}

func zramDeviceNum(source string) (int, bool) {
	rest, found := strings.CutPrefix(source, "/dev/zram")
	if !found {
		return 0, false
	}

	num, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}

	return num, true
}
