// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/aethr/ramroot/internal/block"
	"github.com/aethr/ramroot/internal/plan"
)

func newPlanCommand(opts *options) *cobra.Command {
	var (
		path     string
		usedSize string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the capacity plan without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig("")
			if err != nil {
				return err
			}

			memInfo, err := plan.ReadMemInfo("")
			if err != nil {
				return err
			}

			var usedMiB int64

			if usedSize != "" {
				usedBytes, err := units.RAMInBytes(usedSize)
				if err != nil {
					return fmt.Errorf("parse used size: %w", err)
				}

				usedMiB = usedBytes >> 20
			} else {
				usedBytes, err := block.UsedBytes(path)
				if err != nil {
					return err
				}

				usedMiB = usedBytes >> 20
			}

			ratio := plan.RatioFor(cfg.Algorithm)

			if cfg.RatioSample {
				if sampled, err := plan.SampleRatio(path); err == nil {
					ratio = sampled
				}
			}

			result, err := plan.Compute(plan.Inputs{
				UsedMiB:         usedMiB,
				BufferPercent:   cfg.BufferPercent,
				Ratio:           ratio,
				TotalRAMMiB:     memInfo.TotalMiB,
				AvailableRAMMiB: memInfo.AvailableMiB,
				RAMMinFreeMiB:   cfg.RAMMinFreeMiB,
				RAMPrefFreeMiB:  cfg.RAMPrefFreeMiB,
				DevMinFreeMiB:   cfg.DevMinFreeMiB,
				DevMaxFreeMiB:   cfg.DevMaxFreeMiB,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "algorithm:  %s (ratio %.2f)\n",
				cfg.Algorithm, ratio)
			fmt.Fprintf(out, "used:       %s\n",
				units.BytesSize(float64(usedMiB)*units.MiB))
			fmt.Fprintf(out, "available:  %s\n",
				units.BytesSize(float64(memInfo.AvailableMiB)*units.MiB))
			fmt.Fprintln(out, result.String())

			return nil
		},
	}

	cmd.Flags().StringVar(&path,
		"path", "/", "filesystem to measure")
	cmd.Flags().StringVar(&usedSize,
		"used", "", "assume this used size instead of measuring, e.g. 4g")

	return cmd
}
