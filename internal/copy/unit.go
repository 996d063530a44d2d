// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package copy

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// RootFilesUnit is the synthetic unit covering the non-recursive
// top-level files of the source tree.
const RootFilesUnit = "."

// pseudoMounts are top-level names that never contain data worth
// copying, they are recreated or remounted on the RAM root.
var pseudoMounts = map[string]bool{
	"dev":        true,
	"proc":       true,
	"sys":        true,
	"tmp":        true,
	"run":        true,
	"mnt":        true,
	"media":      true,
	"lost+found": true,
}

// WorkUnit is one named top-level entry of the source tree together
// with its measured size. Immutable once measured.
type WorkUnit struct {
	// Name is the entry name relative to the source root, or
	// [RootFilesUnit] for the root files pseudo unit.
	Name string

	// SizeKiB is the measured size of the unit.
	SizeKiB int64
}

// JobBin is the ordered workload of one worker.
type JobBin struct {
	Units   []WorkUnit
	SizeKiB int64
}

func (b *JobBin) add(unit WorkUnit) {
	b.Units = append(b.Units, unit)
	b.SizeKiB += unit.SizeKiB
}

// DirSizeKiB measures the tree rooted at dir in KiB. Walk errors on
// individual entries are ignored, matching how live systems always have
// a few unreadable files.
func DirSizeKiB(dir string) int64 {
	var bytes int64

	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}

		if info, err := d.Info(); err == nil {
			bytes += info.Size()
		}

		return nil
	})

	return bytes / 1024
}

// Discover lists the work units of the source tree: one unit per
// top-level directory that is no pseudo mount, plus the root files
// unit. Units come back sorted by size, largest first, to seed the
// greedy distribution.
func Discover(src string) ([]WorkUnit, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("list source %s: %w", src, err)
	}

	var (
		units        []WorkUnit
		rootFilesKiB int64
	)

	for _, entry := range entries {
		if entry.IsDir() {
			if pseudoMounts[entry.Name()] {
				continue
			}

			units = append(units, WorkUnit{
				Name:    entry.Name(),
				SizeKiB: DirSizeKiB(filepath.Join(src, entry.Name())),
			})

			continue
		}

		if info, err := entry.Info(); err == nil && entry.Type().IsRegular() {
			rootFilesKiB += info.Size() / 1024
		}
	}

	slices.SortStableFunc(units, func(a, b WorkUnit) int {
		if c := cmp.Compare(b.SizeKiB, a.SizeKiB); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	units = append(units, WorkUnit{Name: RootFilesUnit, SizeKiB: rootFilesKiB})

	return units, nil
}

// Distribute assigns units to the given number of bins with the greedy
// longest-processing-time rule: each unit goes to the currently
// smallest bin. The root files unit always lands in bin 0. The returned
// bins are read-only for the caller.
func Distribute(units []WorkUnit, bins int) []JobBin {
	if bins < 1 {
		bins = 1
	}

	jobBins := make([]JobBin, bins)

	for _, unit := range units {
		if unit.Name == RootFilesUnit {
			continue
		}

		smallest := 0
		for i := 1; i < bins; i++ {
			if jobBins[i].SizeKiB < jobBins[smallest].SizeKiB {
				smallest = i
			}
		}

		jobBins[smallest].add(unit)
	}

	for _, unit := range units {
		if unit.Name == RootFilesUnit {
			jobBins[0].add(unit)
		}
	}

	return jobBins
}
