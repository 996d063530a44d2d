// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package plan

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultMemInfoPath = "/proc/meminfo"

// MemInfo is the subset of /proc/meminfo planning needs, in MiB.
type MemInfo struct {
	TotalMiB     int64
	AvailableMiB int64
}

// ReadMemInfo parses the meminfo file at path. An empty path reads
// /proc/meminfo.
func ReadMemInfo(path string) (MemInfo, error) {
	if path == "" {
		path = defaultMemInfoPath
	}

	file, err := os.Open(path)
	if err != nil {
		return MemInfo{}, fmt.Errorf("open meminfo: %w", err)
	}
	defer file.Close()

	var info MemInfo

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}

		// Values are in kB, e.g. "MemTotal:       16314308 kB".
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}

		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}

		switch name {
		case "MemTotal":
			info.TotalMiB = kb / 1024
		case "MemAvailable":
			info.AvailableMiB = kb / 1024
		}
	}

	if err := scanner.Err(); err != nil {
		return MemInfo{}, fmt.Errorf("read meminfo: %w", err)
	}

	if info.TotalMiB == 0 {
		return MemInfo{}, fmt.Errorf("meminfo %s: no MemTotal entry", path)
	}

	return info, nil
}
