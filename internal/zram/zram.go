// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package zram creates and configures compressed RAM block devices
// through the kernel's sysfs control interface.
package zram

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

var (
	// ErrExhausted is returned when no candidate device number could be
	// provisioned within the attempt budget.
	ErrExhausted = errors.New("no zram device could be provisioned")

	// ErrBusy is returned when a device is held by something the reset
	// path cannot release.
	ErrBusy = errors.New("zram device busy")
)

// Device is a provisioned zram block device.
type Device struct {
	// Num is the kernel device number, so the node is /dev/zram<Num>.
	Num int

	// SizeBytes is the configured uncompressed capacity.
	SizeBytes int64

	// Algorithm is the active compression algorithm.
	Algorithm string

	sysRoot string
	devDir  string
}

// Path returns the device node path.
func (d *Device) Path() string {
	return filepath.Join(d.devDir, fmt.Sprintf("zram%d", d.Num))
}

func (d *Device) sysPath(attr string) string {
	return filepath.Join(
		d.sysRoot, "block", fmt.Sprintf("zram%d", d.Num), attr,
	)
}

func (d *Device) exists() bool {
	_, err := os.Stat(d.sysPath("disksize"))
	return err == nil
}

func (d *Device) writeAttr(attr, value string) error {
	err := os.WriteFile(d.sysPath(attr), []byte(value), 0o200)
	if err != nil {
		return fmt.Errorf("zram%d: set %s=%s: %w", d.Num, attr, value, err)
	}

	return nil
}

func (d *Device) readAttr(attr string) (string, error) {
	raw, err := os.ReadFile(d.sysPath(attr))
	if err != nil {
		return "", fmt.Errorf("zram%d: read %s: %w", d.Num, attr, err)
	}

	return strings.TrimSpace(string(raw)), nil
}

// reset returns the device to its unconfigured state. The device must
// not be in use.
func (d *Device) reset() error {
	return d.writeAttr("reset", "1")
}

// setAlgorithm selects the compression algorithm. The kernel rejects
// unknown algorithms, which surfaces here as a write error.
func (d *Device) setAlgorithm(algorithm string) error {
	return d.writeAttr("comp_algorithm", algorithm)
}

// setSize configures the uncompressed device capacity.
func (d *Device) setSize(sizeBytes int64) error {
	return d.writeAttr("disksize", strconv.FormatInt(sizeBytes, 10))
}

func (d *Device) String() string {
	return fmt.Sprintf(
		"%s (%s, %s)",
		d.Path(),
		units.BytesSize(float64(d.SizeBytes)),
		d.Algorithm,
	)
}

// Stats are the memory figures from a device's mm_stat attribute.
type Stats struct {
	OrigDataBytes  int64
	ComprDataBytes int64
	MemUsedBytes   int64
}

// Ratio is the effective compression ratio so far.
func (s Stats) Ratio() float64 {
	if s.ComprDataBytes == 0 {
		return 0
	}

	return float64(s.OrigDataBytes) / float64(s.ComprDataBytes)
}

// ReadStats reads mm_stat of the device.
func (d *Device) ReadStats() (Stats, error) {
	raw, err := d.readAttr("mm_stat")
	if err != nil {
		return Stats{}, err
	}

	fields := strings.Fields(raw)
	if len(fields) < 3 {
		return Stats{}, fmt.Errorf("zram%d: malformed mm_stat %q", d.Num, raw)
	}

	var values [3]int64

	for i := range values {
		values[i], err = strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("zram%d: mm_stat: %w", d.Num, err)
		}
	}

	return Stats{
		OrigDataBytes:  values[0],
		ComprDataBytes: values[1],
		MemUsedBytes:   values[2],
	}, nil
}
