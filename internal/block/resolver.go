// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package block resolves root specifications to concrete block devices.
//
// A specification may point at a plain filesystem, a LUKS container or
// an LVM physical volume. Resolution only reads metadata and activates
// volume groups, it never alters on-disk state.
package block

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aethr/ramroot/internal/retry"
)

const (
	defaultSettleTimeout = 10 * time.Second
	defaultWaitTimeout   = 30 * time.Second

	waitPause = 500 * time.Millisecond
)

// Hints carries the LUKS and LVM parameters from the kernel command
// line that guide container resolution.
type Hints struct {
	// LUKSName is the mapper name from a rd.luks.name parameter.
	LUKSName string

	// LUKSUUID is the container UUID from a rd.luks.uuid parameter.
	LUKSUUID string

	// LVMVolume names the logical volume holding the root, either as
	// "vg/lv" or as a full device path.
	LVMVolume string
}

// Resolver turns a [RootSpec] into a [ResolvedDevice].
type Resolver struct {
	Runner Runner
	Hints  Hints
	Log    logrus.FieldLogger

	// DevDir is the devtmpfs mount point. Defaults to /dev. Tests use a
	// plain directory.
	DevDir string

	// SettleTimeout bounds the initial udev settle.
	SettleTimeout time.Duration

	// WaitTimeout bounds each wait for a device node to appear.
	WaitTimeout time.Duration
}

func (r *Resolver) devDir() string {
	if r.DevDir == "" {
		return "/dev"
	}

	return r.DevDir
}

func (r *Resolver) waitTimeout() time.Duration {
	if r.WaitTimeout == 0 {
		return defaultWaitTimeout
	}

	return r.WaitTimeout
}

func (r *Resolver) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}

	return r.Log
}

// Resolve resolves spec to the concrete device holding the root
// filesystem, activating LUKS mappings and LVM volume groups on the
// way as needed.
func (r *Resolver) Resolve(
	ctx context.Context,
	spec RootSpec,
) (ResolvedDevice, error) {
	r.settle(ctx)

	path, err := r.lookupPath(ctx, spec)
	if err != nil {
		return ResolvedDevice{}, err
	}

	probe, err := probeDevice(ctx, r.Runner, path)
	if err != nil {
		return ResolvedDevice{}, err
	}

	switch probe.Container() {
	case ContainerLUKS:
		return r.resolveLUKS(ctx, probe)
	case ContainerLVM:
		return r.resolveLVM(ctx)
	default:
		return ResolvedDevice{
			Path:      path,
			FSType:    probe.FSType,
			Container: ContainerPlain,
		}, nil
	}
}

// settle asks udev to finish processing queued events so by-* symlinks
// are in place. Failure is harmless, the appearance waits cover it.
func (r *Resolver) settle(ctx context.Context) {
	timeout := r.SettleTimeout
	if timeout == 0 {
		timeout = defaultSettleTimeout
	}

	secs := fmt.Sprintf("--timeout=%d", int(timeout.Seconds()))
	if _, err := r.Runner.Run(ctx, "udevadm", "settle", secs); err != nil {
		r.log().WithError(err).Debug("udev settle failed")
	}
}

// lookupPath maps the spec onto a device node, waits for the node to
// appear and follows symlinks to the real device.
func (r *Resolver) lookupPath(
	ctx context.Context,
	spec RootSpec,
) (string, error) {
	var path string

	switch spec.Kind {
	case SpecUUID:
		path = filepath.Join(r.devDir(), "disk", "by-uuid", spec.Value)
	case SpecLabel:
		path = filepath.Join(r.devDir(), "disk", "by-label", spec.Value)
	case SpecPartUUID:
		path = filepath.Join(r.devDir(), "disk", "by-partuuid", spec.Value)
	case SpecPath:
		path = spec.Value
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSpec, spec.String())
	}

	if err := r.waitForPath(ctx, path); err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	return resolved, nil
}

func (r *Resolver) waitForPath(ctx context.Context, path string) error {
	err := retry.Until(ctx, r.waitTimeout(), waitPause, func() (bool, error) {
		_, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}

			return false, err
		}

		return true, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, path, err)
	}

	return nil
}
