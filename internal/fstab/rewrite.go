// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package fstab adjusts the mount table of the migrated tree.
//
// The rewrite never deletes information: offending lines are commented
// out and new entries are appended, so restoring the backup undoes
// everything.
package fstab

import (
	"fmt"
	"os"
	"strings"
)

// commentTag marks lines this engine commented or appended, keeping
// the rewrite recognizable and repeat runs idempotent.
const commentTag = "#ramroot#"

// BackupSuffix is appended to the fstab path for the pristine copy.
const BackupSuffix = ".ramroot-backup"

// diskMountPoints would remount original devices over the RAM root.
var diskMountPoints = map[string]bool{
	"/":         true,
	"/boot":     true,
	"/boot/efi": true,
	"/home":     true,
	"/var":      true,
}

// PhysicalRoot describes the entry mounting the original root device,
// serving as the bind-mount source for mount-on-disk paths.
type PhysicalRoot struct {
	Device     string
	MountPoint string
	FSType     string
	Options    string
}

// Swap describes the RAM swap device entry.
type Swap struct {
	Device   string
	Priority int
}

// Rewrite is one fstab adjustment pass.
type Rewrite struct {
	// Path is the fstab inside the migrated tree.
	Path string

	// VolumeGroup, when set, comments out lines referencing volumes of
	// that group to avoid boot stalls on missing devices.
	VolumeGroup string

	// PhysicalRoot, when set, is appended together with one bind mount
	// per MountOnDisk path.
	PhysicalRoot *PhysicalRoot
	MountOnDisk  []string

	// Swap, when set, appends the swap entry.
	Swap *Swap
}

// Apply performs the rewrite. A missing fstab is a no-op: the migrated
// tree then simply has no mount table to neutralize.
func (r *Rewrite) Apply() error {
	raw, err := os.ReadFile(r.Path)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read %s: %w", r.Path, err)
	}

	if err := r.backup(raw); err != nil {
		return err
	}

	content := string(raw)
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	for i, line := range lines {
		if reason := r.neutralizeReason(line); reason != "" {
			lines[i] = commentTag + " " + reason + ": " + line
		}
	}

	lines = append(lines, r.appendLines(lines)...)

	output := strings.Join(lines, "\n") + "\n"

	if err := os.WriteFile(r.Path, []byte(output), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.Path, err)
	}

	return nil
}

// backup writes the pristine copy once. An existing backup is kept, it
// is the original from the first pass.
func (r *Rewrite) backup(raw []byte) error {
	path := r.Path + BackupSuffix

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}

	return nil
}

// neutralizeReason decides whether the line must be commented out and
// names why. Comments and blank lines stay untouched, which also makes
// repeated passes idempotent.
func (r *Rewrite) neutralizeReason(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}

	fields := strings.Fields(trimmed)
	if len(fields) < 3 {
		return ""
	}

	device, mountPoint, fsType := fields[0], fields[1], fields[2]

	// Entries this engine appends (zram swap, bind mounts) must survive
	// a repeated pass.
	if strings.HasPrefix(device, "/dev/zram") || fsType == "none" {
		return ""
	}

	switch {
	case diskMountPoints[mountPoint]:
		return "disk mount"
	case fsType == "swap":
		return "disk swap"
	case r.referencesVolumeGroup(device):
		return "volume group " + r.VolumeGroup
	default:
		return ""
	}
}

func (r *Rewrite) referencesVolumeGroup(device string) bool {
	if r.VolumeGroup == "" {
		return false
	}

	mapper := "/dev/mapper/" + escapeDashes(r.VolumeGroup) + "-"
	lvmPath := "/dev/" + r.VolumeGroup + "/"

	return strings.HasPrefix(device, mapper) ||
		strings.HasPrefix(device, lvmPath)
}

func escapeDashes(s string) string {
	return strings.ReplaceAll(s, "-", "--")
}

// appendLines renders the configured additions, skipping any that are
// already present from an earlier pass.
func (r *Rewrite) appendLines(existing []string) []string {
	var additions []string

	appendOnce := func(line string) {
		for _, have := range existing {
			if have == line {
				return
			}
		}

		additions = append(additions, line)
	}

	if r.PhysicalRoot != nil {
		root := r.PhysicalRoot

		options := root.Options
		if options == "" {
			options = "defaults"
		}

		appendOnce(fmt.Sprintf("%s %s %s %s 0 0",
			root.Device, root.MountPoint, root.FSType, options))

		for _, dir := range r.MountOnDisk {
			dir = "/" + strings.Trim(dir, "/")
			appendOnce(fmt.Sprintf("%s%s %s none bind 0 0",
				root.MountPoint, dir, dir))
		}
	}

	if r.Swap != nil {
		appendOnce(fmt.Sprintf("%s none swap defaults,pri=%d 0 0",
			r.Swap.Device, r.Swap.Priority))
	}

	return additions
}
