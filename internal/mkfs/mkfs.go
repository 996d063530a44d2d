// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mkfs formats block devices with the configured filesystem.
package mkfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aethr/ramroot/internal/block"
)

var (
	// ErrToolUnavailable is returned if no mkfs tool for the requested
	// filesystem type is installed.
	ErrToolUnavailable = errors.New("mkfs tool unavailable")

	// ErrFormatFailed is returned if the mkfs invocation failed.
	ErrFormatFailed = errors.New("format failed")
)

// extraArgs holds per-filesystem flags. A journal on a RAM-backed
// device only burns memory, and lazy init has no benefit there.
var extraArgs = map[string][]string{
	"ext4":  {"-O", "^has_journal", "-E", "lazy_itable_init=0"},
	"ext2":  nil,
	"btrfs": {"-f"},
	"xfs":   {"-f"},
	"f2fs":  nil,
}

// Format creates a filesystem of the given type on the device. There is
// no fallback to another filesystem type on failure.
func Format(ctx context.Context, r block.Runner, dev, fstype string) error {
	tool := "mkfs." + fstype

	if _, err := r.LookPath(tool); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrToolUnavailable, tool, err)
	}

	args := append([]string(nil), extraArgs[fstype]...)
	args = append(args, dev)

	if out, err := r.Run(ctx, tool, args...); err != nil {
		return fmt.Errorf("%w: %s on %s: %w: %s",
			ErrFormatFailed, tool, dev, err, out)
	}

	return nil
}
