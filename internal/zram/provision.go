// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package zram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/docker/go-units"
	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const defaultSysRoot = "/sys"

// swapoff invokes swapoff(2); golang.org/x/sys/unix has no wrapper for it.
func swapoff(path string) error {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(unix.SYS_SWAPOFF, uintptr(unsafe.Pointer(p)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Request describes one device to provision.
type Request struct {
	// SizeMiB is the uncompressed capacity from the capacity plan.
	SizeMiB int64

	// Algorithm is the zram compression algorithm.
	Algorithm string

	// StartNum is the first candidate device number.
	StartNum int

	// Reserved numbers are skipped, e.g. the number claimed by the
	// parallel swap provisioning path.
	Reserved map[int]bool

	// Attempts bounds how many candidate numbers are tried.
	Attempts int
}

// Provisioner creates zram devices. The sysfs root and the in-use
// release hooks are injectable for tests; the zero value is not usable,
// construct with [NewProvisioner].
type Provisioner struct {
	sysRoot string
	devDir  string
	log     logrus.FieldLogger

	swapOff      func(dev string) error
	unmount      func(target string) error
	deviceMounts func(dev string) ([]string, error)
}

// NewProvisioner returns a Provisioner operating on the real system.
func NewProvisioner(logger logrus.FieldLogger) *Provisioner {
	return &Provisioner{
		sysRoot:      defaultSysRoot,
		devDir:       "/dev",
		log:          logger,
		swapOff:      swapoff,
		unmount:      func(target string) error { return unix.Unmount(target, 0) },
		deviceMounts: deviceMounts,
	}
}

// Provision configures a device per req, walking candidate device
// numbers until one succeeds. Failures on one candidate advance to the
// next; exhausting the budget returns [ErrExhausted].
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Device, error) {
	attempts := req.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error

	num := req.StartNum

	for tried := 0; tried < attempts; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if req.Reserved[num] {
			continue
		}

		tried++

		dev, err := p.provisionOne(num, req)
		if err == nil {
			p.log.WithField("device", dev.Path()).
				Infof("provisioned zram device, size %s",
					units.BytesSize(float64(dev.SizeBytes)))

			return dev, nil
		}

		p.log.WithError(err).
			Warnf("zram%d not usable, trying next candidate", num)

		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

func (p *Provisioner) provisionOne(num int, req Request) (*Device, error) {
	dev := &Device{
		Num:     num,
		sysRoot: p.sysRoot,
		devDir:  p.devDir,
	}

	if !dev.exists() {
		if err := p.hotAdd(num); err != nil {
			return nil, err
		}
	}

	if err := p.Release(dev); err != nil {
		return nil, err
	}

	if err := dev.setAlgorithm(req.Algorithm); err != nil {
		return nil, err
	}

	sizeBytes := req.SizeMiB * units.MiB
	if err := dev.setSize(sizeBytes); err != nil {
		return nil, err
	}

	dev.SizeBytes = sizeBytes
	dev.Algorithm = req.Algorithm

	return dev, nil
}

// hotAdd asks the zram control interface for new devices until the
// wanted number exists. Each read creates the next free device, so at
// most num+1 reads are needed.
func (p *Provisioner) hotAdd(num int) error {
	control := filepath.Join(p.sysRoot, "class", "zram-control", "hot_add")

	for i := 0; i < num+1; i++ {
		raw, err := os.ReadFile(control)
		if err != nil {
			return fmt.Errorf("zram hot_add: %w", err)
		}

		added := strings.TrimSpace(string(raw))

		dev := &Device{Num: num, sysRoot: p.sysRoot}
		if dev.exists() || added == fmt.Sprint(num) {
			return nil
		}
	}

	return fmt.Errorf("%w: zram%d did not appear via hot_add", ErrBusy, num)
}

// Release takes the device out of use and resets it: swap is switched
// off, mounts are detached, prior configuration is dropped. Used both
// before reconfiguring a candidate and during rollback.
func (p *Provisioner) Release(dev *Device) error {
	// Swapoff fails harmlessly if the device is no swap device.
	_ = p.swapOff(dev.Path())

	mounts, err := p.deviceMounts(dev.Path())
	if err != nil {
		return fmt.Errorf("%s: list mounts: %w", dev.Path(), err)
	}

	for _, target := range mounts {
		if err := p.unmount(target); err != nil {
			return fmt.Errorf("%w: %w", ErrBusy, err)
		}
	}

	return dev.reset()
}

// Attach looks up an already provisioned device, for status reporting.
func (p *Provisioner) Attach(num int) (*Device, error) {
	dev := &Device{
		Num:     num,
		sysRoot: p.sysRoot,
		devDir:  p.devDir,
	}

	if !dev.exists() {
		return nil, fmt.Errorf("zram%d: not present", num)
	}

	return dev, nil
}

// deviceMounts lists mount points whose source is the given device.
func deviceMounts(dev string) ([]string, error) {
	infos, err := mountinfo.GetMounts(func(i *mountinfo.Info) (bool, bool) {
		return i.Source != dev, false
	})
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(infos))
	for _, info := range infos {
		targets = append(targets, info.Mountpoint)
	}

	return targets, nil
}
