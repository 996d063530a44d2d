// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package boot sequences a migration attempt and guarantees that any
// failure falls back to the normal disk boot.
package boot

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/aethr/ramroot/internal/block"
	"github.com/aethr/ramroot/internal/config"
	"github.com/aethr/ramroot/internal/copy"
	"github.com/aethr/ramroot/internal/fstab"
	"github.com/aethr/ramroot/internal/mkfs"
	"github.com/aethr/ramroot/internal/plan"
	"github.com/aethr/ramroot/internal/zram"
)

// Default mount locations of one attempt. The physical root mount point
// also ends up in the rewritten fstab as the bind-mount source.
const (
	DefaultSourceMount   = "/run/ramroot/physical"
	DefaultTargetMount   = "/run/ramroot/root"
	PhysicalRootFSTabDir = "/mnt/ramroot"
)

// Migrator wires the components into the staged boot flow. The mount
// and measurement hooks are replaceable for tests; zero values use the
// real system.
type Migrator struct {
	Config      *config.Config
	Log         logrus.FieldLogger
	Runner      block.Runner
	Provisioner *zram.Provisioner
	Resolver    *block.Resolver

	SourceMount string
	TargetMount string
	MemInfoPath string

	MountFn     func(dev, target, fstype, options string) error
	UnmountFn   func(target string) error
	UsedBytesFn func(path string) (int64, error)

	state MigrationState
}

// State exposes the attempt state for inspection after Run returned.
func (m *Migrator) State() *MigrationState {
	return &m.state
}

func (m *Migrator) sourceMount() string {
	if m.SourceMount == "" {
		return DefaultSourceMount
	}

	return m.SourceMount
}

func (m *Migrator) targetMount() string {
	if m.TargetMount == "" {
		return DefaultTargetMount
	}

	return m.TargetMount
}

func (m *Migrator) mount(dev, target, fstype, options string) error {
	if m.MountFn != nil {
		return m.MountFn(dev, target, fstype, options)
	}

	return block.Mount(dev, target, fstype, options)
}

func (m *Migrator) unmount(target string) error {
	if m.UnmountFn != nil {
		return m.UnmountFn(target)
	}

	return block.Unmount(target)
}

func (m *Migrator) usedBytes(path string) (int64, error) {
	if m.UsedBytesFn != nil {
		return m.UsedBytesFn(path)
	}

	return block.UsedBytes(path)
}

// Run executes one migration attempt. On any error the attempt has
// already fallen back: created mounts are gone, devices are released
// and no handoff record remains, so the caller just continues the
// normal boot.
func (m *Migrator) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			m.Log.WithError(err).
				WithField("stage", m.state.Stage().String()).
				Error("migration failed, falling back to disk boot")
			m.state.Fallback(m.Log)
		}
	}()

	resolved, err := m.resolveRoot(ctx)
	if err != nil {
		return err
	}

	capacity, memAvailableMiB, err := m.planCapacity(ctx, resolved)
	if err != nil {
		return err
	}

	rootDev, swapDev, err := m.provision(ctx, capacity)
	if err != nil {
		return err
	}

	swapDev, err = m.format(ctx, rootDev, swapDev)
	if err != nil {
		return err
	}

	if err := m.copyTree(ctx, rootDev, memAvailableMiB); err != nil {
		return err
	}

	m.rewriteFstab(ctx, resolved, swapDev)

	if err := m.handoff(rootDev); err != nil {
		return err
	}

	return m.finish()
}

func (m *Migrator) resolveRoot(ctx context.Context) (block.ResolvedDevice, error) {
	if err := m.state.Advance(StageResolveRoot); err != nil {
		return block.ResolvedDevice{}, err
	}

	spec, err := block.ParseRootSpec(m.Config.Root)
	if err != nil {
		return block.ResolvedDevice{}, err
	}

	resolved, err := m.resolver().Resolve(ctx, spec)
	if err != nil {
		return block.ResolvedDevice{}, fmt.Errorf("resolve root: %w", err)
	}

	if resolved.Container == block.ContainerLVM {
		m.state.OnFallback(func() error {
			return block.DeactivateVolumeGroups(ctx, m.Runner)
		})
	}

	m.Log.WithFields(logrus.Fields{
		"device":    resolved.Path,
		"fstype":    resolved.FSType,
		"container": resolved.Container.String(),
	}).Info("root device resolved")

	return resolved, nil
}

func (m *Migrator) resolver() *block.Resolver {
	if m.Resolver != nil {
		return m.Resolver
	}

	return &block.Resolver{
		Runner: m.Runner,
		Log:    m.Log,
		Hints: block.Hints{
			LUKSName:  m.Config.LUKSName,
			LUKSUUID:  m.Config.LUKSUUID,
			LVMVolume: m.Config.LVMVolume,
		},
		WaitTimeout: m.Config.EffectiveWaitTimeout(),
	}
}

// planCapacity mounts the source and derives the device size. The
// explicit size override skips planning entirely.
func (m *Migrator) planCapacity(
	_ context.Context,
	resolved block.ResolvedDevice,
) (int64, int64, error) {
	if err := m.state.Advance(StagePlan); err != nil {
		return 0, 0, err
	}

	src := m.sourceMount()

	if err := m.mount(resolved.Path, src, resolved.FSType, ""); err != nil {
		return 0, 0, fmt.Errorf("mount source: %w", err)
	}

	m.state.OnFallback(func() error { return m.unmount(src) })

	memInfo, err := plan.ReadMemInfo(m.MemInfoPath)
	if err != nil {
		return 0, 0, err
	}

	if m.Config.SizeMiB > 0 {
		m.Log.WithField("size_mib", m.Config.SizeMiB).
			Info("using configured device size")

		return m.Config.SizeMiB, memInfo.AvailableMiB, nil
	}

	usedBytes, err := m.usedBytes(src)
	if err != nil {
		return 0, 0, err
	}

	ratio := plan.RatioFor(m.Config.Algorithm)

	if m.Config.RatioSample {
		if sampled, err := plan.SampleRatio(src); err == nil {
			ratio = sampled
		}
	}

	capacity, err := plan.Compute(plan.Inputs{
		UsedMiB:         usedBytes >> 20,
		BufferPercent:   m.Config.BufferPercent,
		Ratio:           ratio,
		TotalRAMMiB:     memInfo.TotalMiB,
		AvailableRAMMiB: memInfo.AvailableMiB,
		RAMMinFreeMiB:   m.Config.RAMMinFreeMiB,
		RAMPrefFreeMiB:  m.Config.RAMPrefFreeMiB,
		DevMinFreeMiB:   m.Config.DevMinFreeMiB,
		DevMaxFreeMiB:   m.Config.DevMaxFreeMiB,
	})
	if err != nil {
		return 0, 0, err
	}

	m.Log.Info("capacity plan: ", capacity.String())

	return capacity.TargetMiB, memInfo.AvailableMiB, nil
}

// provision creates the root device and, when configured, the swap
// device. The two paths reserve each other's device numbers and fail
// independently: a swap provisioning error only costs the swap.
func (m *Migrator) provision(
	ctx context.Context,
	targetMiB int64,
) (*zram.Device, *zram.Device, error) {
	if err := m.state.Advance(StageProvision); err != nil {
		return nil, nil, err
	}

	cfg := m.Config

	var swapDev *zram.Device

	if cfg.SwapEnabled && cfg.SwapSizeMiB > 0 {
		var err error

		swapDev, err = m.Provisioner.Provision(ctx, zram.Request{
			SizeMiB:   cfg.SwapSizeMiB,
			Algorithm: cfg.SwapAlgorithm,
			StartNum:  cfg.SwapDeviceNum,
			Reserved:  map[int]bool{cfg.DeviceNum: true},
			Attempts:  cfg.DeviceAttempts,
		})
		if err != nil {
			m.Log.WithError(err).Warn("swap device unavailable, continuing without")
		} else {
			m.registerRelease(swapDev)
		}
	}

	reserved := map[int]bool{cfg.SwapDeviceNum: true}
	if swapDev != nil {
		reserved[swapDev.Num] = true
	}

	rootDev, err := m.Provisioner.Provision(ctx, zram.Request{
		SizeMiB:   targetMiB,
		Algorithm: cfg.Algorithm,
		StartNum:  cfg.DeviceNum,
		Reserved:  reserved,
		Attempts:  cfg.DeviceAttempts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("provision root device: %w", err)
	}

	m.registerRelease(rootDev)

	return rootDev, swapDev, nil
}

func (m *Migrator) registerRelease(dev *zram.Device) {
	m.state.OnFallback(func() error {
		return m.Provisioner.Release(dev)
	})
}

// format puts the filesystem on the root device and swap space on the
// swap device. A swap format failure drops the swap, a root format
// failure is fatal.
func (m *Migrator) format(
	ctx context.Context,
	rootDev, swapDev *zram.Device,
) (*zram.Device, error) {
	if err := m.state.Advance(StageFormat); err != nil {
		return nil, err
	}

	err := mkfs.Format(ctx, m.Runner, rootDev.Path(), m.Config.FSType)
	if err != nil {
		return nil, err
	}

	if swapDev != nil {
		if _, err := m.Runner.Run(ctx, "mkswap", swapDev.Path()); err != nil {
			m.Log.WithError(err).Warn("mkswap failed, continuing without swap")
			swapDev = nil
		}
	}

	return swapDev, nil
}

func (m *Migrator) copyTree(
	ctx context.Context,
	rootDev *zram.Device,
	memAvailableMiB int64,
) error {
	if err := m.state.Advance(StageCopy); err != nil {
		return err
	}

	cfg := m.Config

	dst := m.targetMount()

	// The RAM device is mounted exactly once for the whole copy.
	if err := m.mount(rootDev.Path(), dst, cfg.FSType, cfg.MountOptions); err != nil {
		return fmt.Errorf("mount RAM root: %w", err)
	}

	m.state.OnFallback(func() error { return m.unmount(dst) })

	filter, err := copy.NewFilter(cfg.Include, cfg.Exclude, cfg.MountOnDisk)
	if err != nil {
		return err
	}

	engine := &copy.Engine{
		Runner:          m.Runner,
		Log:             m.Log,
		Filter:          filter,
		WorkersHint:     cfg.Workers,
		AvailableRAMMiB: memAvailableMiB,
		Strict:          cfg.CopyStrict,
		Timeout:         cfg.CopyTimeout,
		OnProgress: func(percent int) {
			m.Log.Infof("copying root to RAM: %d%%", percent)
		},
	}

	result, err := engine.Run(ctx, m.sourceMount(), dst)
	if err != nil {
		return err
	}

	if len(result.FailedUnits) > 0 {
		m.Log.WithField("units", result.FailedUnits).
			Warn("units missing or partial on RAM root")
	}

	m.state.MarkPopulated()

	return nil
}

// rewriteFstab is best effort: a failure leaves a working, if
// suboptimal, mount table and is not worth losing the migration over.
func (m *Migrator) rewriteFstab(
	ctx context.Context,
	resolved block.ResolvedDevice,
	swapDev *zram.Device,
) {
	if err := m.state.Advance(StageRewrite); err != nil {
		m.Log.WithError(err).Warn("skipping fstab rewrite")
		return
	}

	var volumeGroup string
	if resolved.Container == block.ContainerLVM {
		volumeGroup = fstab.DetectVolumeGroup(ctx, m.Runner, resolved.Path)
	}

	rewrite := &fstab.Rewrite{
		Path:        filepath.Join(m.targetMount(), "etc", "fstab"),
		VolumeGroup: volumeGroup,
		MountOnDisk: m.Config.MountOnDisk,
	}

	if len(m.Config.MountOnDisk) > 0 {
		rewrite.PhysicalRoot = &fstab.PhysicalRoot{
			Device:     resolved.Path,
			MountPoint: PhysicalRootFSTabDir,
			FSType:     resolved.FSType,
		}
	}

	if swapDev != nil {
		rewrite.Swap = &fstab.Swap{
			Device:   swapDev.Path(),
			Priority: m.Config.SwapPriority,
		}
	}

	if err := rewrite.Apply(); err != nil {
		m.Log.WithError(err).Warn("fstab rewrite failed")
	}
}

func (m *Migrator) handoff(rootDev *zram.Device) error {
	if err := m.state.Advance(StageHandoff); err != nil {
		return err
	}

	path := m.Config.HandoffPath

	m.state.OnFallback(func() error { return RemoveHandoff(path) })

	return WriteHandoff(path, HandoffRecord{
		Device:       rootDev.Path(),
		FSType:       m.Config.FSType,
		MountOptions: m.Config.MountOptions,
	})
}

// finish releases the attempt's mounts so the next boot stage can mount
// the RAM root at its final place, then seals the state.
func (m *Migrator) finish() error {
	if err := m.unmount(m.targetMount()); err != nil {
		return fmt.Errorf("release RAM root mount: %w", err)
	}

	if err := m.unmount(m.sourceMount()); err != nil {
		return fmt.Errorf("release source mount: %w", err)
	}

	if err := m.state.Advance(StageDone); err != nil {
		return err
	}

	m.Log.Info("migration complete, root continues from RAM")

	return nil
}
