// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package fstab

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aethr/ramroot/internal/block"
)

// DetectVolumeGroup determines the volume group of the device the root
// lives on, so its other volumes can be neutralized in the mount table.
// Device-mapper introspection is authoritative; if it fails, the mapper
// naming convention is decoded instead. Empty means "no group found",
// which is not an error.
func DetectVolumeGroup(ctx context.Context, r block.Runner, dev string) string {
	name := filepath.Base(dev)

	out, err := r.Run(ctx,
		"dmsetup", "splitname", "--noheadings",
		"--separator", "/", name,
	)
	if err == nil {
		if vg, _, ok := strings.Cut(strings.TrimSpace(out), "/"); ok && vg != "" {
			return vg
		}
	}

	vg, _, ok := splitMapperName(name)
	if !ok {
		return ""
	}

	return vg
}

// splitMapperName decodes an LVM mapper name like "vg--data-root" into
// its group and volume parts. The split happens at the first single
// dash; doubled dashes escape a literal dash inside a name.
func splitMapperName(name string) (vg, lv string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] != '-' {
			continue
		}

		if i+1 < len(name) && name[i+1] == '-' {
			i++ // escaped dash
			continue
		}

		return unescapeDashes(name[:i]), unescapeDashes(name[i+1:]), true
	}

	return "", "", false
}

func unescapeDashes(s string) string {
	return strings.ReplaceAll(s, "--", "-")
}
