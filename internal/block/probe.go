// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"context"
	"fmt"
	"strings"
)

// Filesystem type strings blkid reports for container devices.
const (
	fsTypeLUKS      = "crypto_LUKS"
	fsTypeLVMMember = "LVM2_member"
)

// Probe is the filesystem metadata of a block device.
type Probe struct {
	FSType   string
	UUID     string
	Label    string
	PartUUID string
}

// Container maps the probed filesystem type to a container kind.
func (p Probe) Container() Container {
	switch p.FSType {
	case fsTypeLUKS:
		return ContainerLUKS
	case fsTypeLVMMember:
		return ContainerLVM
	default:
		return ContainerPlain
	}
}

// probeDevice reads filesystem metadata via blkid's export format, which
// prints one KEY=VALUE pair per line.
func probeDevice(ctx context.Context, r Runner, dev string) (Probe, error) {
	out, err := r.Run(ctx, "blkid", "-o", "export", dev)
	if err != nil {
		return Probe{}, fmt.Errorf("%w: %s: %w", ErrProbeFailed, dev, err)
	}

	return parseProbe(out), nil
}

func parseProbe(out string) Probe {
	var probe Probe

	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}

		switch strings.ToUpper(key) {
		case "TYPE":
			probe.FSType = value
		case "UUID":
			probe.UUID = value
		case "LABEL":
			probe.Label = value
		case "PARTUUID":
			probe.PartUUID = value
		}
	}

	return probe
}
