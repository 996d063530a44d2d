// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// ActivateVolumeGroups activates all visible volume groups. It is
// idempotent, activating an active group is a no-op for LVM.
func ActivateVolumeGroups(ctx context.Context, r Runner) error {
	if _, err := r.Run(ctx, "vgchange", "-ay"); err != nil {
		return fmt.Errorf("activate volume groups: %w", err)
	}

	return nil
}

// DeactivateVolumeGroups is the cleanup counterpart used on fallback.
func DeactivateVolumeGroups(ctx context.Context, r Runner) error {
	if _, err := r.Run(ctx, "vgchange", "-an"); err != nil {
		return fmt.Errorf("deactivate volume groups: %w", err)
	}

	return nil
}

// resolveLVM activates volume groups and resolves the logical volume
// named by the LVM hint. A "vg/lv" pair is preferred; a full device
// path is accepted as-is.
func (r *Resolver) resolveLVM(ctx context.Context) (ResolvedDevice, error) {
	if err := ActivateVolumeGroups(ctx, r.Runner); err != nil {
		return ResolvedDevice{}, err
	}

	path, err := r.logicalVolumePath()
	if err != nil {
		return ResolvedDevice{}, err
	}

	r.log().WithField("device", path).Debug("waiting for logical volume")

	if err := r.waitForPath(ctx, path); err != nil {
		return ResolvedDevice{}, err
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ResolvedDevice{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	probe, err := probeDevice(ctx, r.Runner, resolved)
	if err != nil {
		return ResolvedDevice{}, err
	}

	return ResolvedDevice{
		Path:      resolved,
		FSType:    probe.FSType,
		Container: ContainerLVM,
	}, nil
}

func (r *Resolver) logicalVolumePath() (string, error) {
	hint := r.Hints.LVMVolume
	if hint == "" {
		return "", fmt.Errorf(
			"%w: no logical volume argument", ErrLVUnresolved,
		)
	}

	if strings.HasPrefix(hint, "/") {
		return hint, nil
	}

	vg, lv, ok := strings.Cut(hint, "/")
	if !ok || vg == "" || lv == "" {
		return "", fmt.Errorf("%w: malformed %q", ErrLVUnresolved, hint)
	}

	return filepath.Join(r.devDir(), vg, lv), nil
}
