// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"context"
	"path/filepath"
)

const luksMapperPrefix = "luks-"

// mapperName derives the deterministic device-mapper name the boot
// framework uses when it opens the container. Precedence: explicit
// name mapping, explicit UUID mapping, container UUID.
func (r *Resolver) mapperName(containerUUID string) string {
	switch {
	case r.Hints.LUKSName != "":
		return r.Hints.LUKSName
	case r.Hints.LUKSUUID != "":
		return luksMapperPrefix + r.Hints.LUKSUUID
	default:
		return luksMapperPrefix + containerUUID
	}
}

// resolveLUKS waits for the decrypted mapper device of the probed
// container and re-probes it for the inner filesystem type. The
// container is opened by the boot framework before this engine runs, so
// resolution only has to wait, never unlock.
func (r *Resolver) resolveLUKS(
	ctx context.Context,
	container Probe,
) (ResolvedDevice, error) {
	name := r.mapperName(container.UUID)
	path := filepath.Join(r.devDir(), "mapper", name)

	r.log().WithField("device", path).Debug("waiting for mapper device")

	if err := r.waitForPath(ctx, path); err != nil {
		return ResolvedDevice{}, err
	}

	probe, err := probeDevice(ctx, r.Runner, path)
	if err != nil {
		return ResolvedDevice{}, err
	}

	if probe.Container() == ContainerLVM {
		// LVM on LUKS. The mapper device is a physical volume.
		return r.resolveLVM(ctx)
	}

	return ResolvedDevice{
		Path:      path,
		FSType:    probe.FSType,
		Container: ContainerLUKS,
	}, nil
}
