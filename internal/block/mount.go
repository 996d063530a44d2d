// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const mountDirMode = 0o755

// mountFlagNames maps option strings to mount(2) flags. Options not in
// the table are passed to the filesystem as data.
var mountFlagNames = map[string]uintptr{
	"ro":         unix.MS_RDONLY,
	"nosuid":     unix.MS_NOSUID,
	"nodev":      unix.MS_NODEV,
	"noexec":     unix.MS_NOEXEC,
	"sync":       unix.MS_SYNCHRONOUS,
	"noatime":    unix.MS_NOATIME,
	"nodiratime": unix.MS_NODIRATIME,
	"relatime":   unix.MS_RELATIME,
}

// ParseMountOptions splits a comma separated option string into
// mount(2) flags and filesystem data. "defaults" is accepted and
// contributes nothing.
func ParseMountOptions(options string) (uintptr, string) {
	var (
		flags uintptr
		data  []string
	)

	for _, opt := range strings.Split(options, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" || opt == "defaults" {
			continue
		}

		if flag, known := mountFlagNames[opt]; known {
			flags |= flag
			continue
		}

		data = append(data, opt)
	}

	return flags, strings.Join(data, ",")
}

// Mount mounts the device at target, creating target if needed.
func Mount(dev, target, fstype, options string) error {
	if err := os.MkdirAll(target, mountDirMode); err != nil {
		return fmt.Errorf("mkdir %s: %w", target, err)
	}

	flags, data := ParseMountOptions(options)

	if err := unix.Mount(dev, target, fstype, flags, data); err != nil {
		return fmt.Errorf("mount %s on %s: %w", dev, target, err)
	}

	return nil
}

// Unmount detaches the filesystem at target.
func Unmount(target string) error {
	if err := unix.Unmount(target, 0); err != nil {
		return fmt.Errorf("unmount %s: %w", target, err)
	}

	return nil
}

// UsedBytes reports the used space of the filesystem mounted at path.
func UsedBytes(path string) (int64, error) {
	var stat unix.Statfs_t

	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	used := (stat.Blocks - stat.Bfree) * uint64(stat.Bsize)

	return int64(used), nil
}
