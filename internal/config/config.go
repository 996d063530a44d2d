// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the engine configuration from the key=value
// configuration file and the kernel command line.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/ini.v1"
)

// Default values for the tunable knobs. Margins are in MiB.
const (
	DefaultAlgorithm     = "zstd"
	DefaultFSType        = "ext4"
	DefaultMountOptions  = "defaults,noatime"
	DefaultBufferPercent = 10

	DefaultRAMMinFreeMiB  = 512
	DefaultRAMPrefFreeMiB = 1024
	DefaultDevMinFreeMiB  = 256
	DefaultDevMaxFreeMiB  = 2048

	DefaultDeviceNum      = 0
	DefaultSwapDeviceNum  = 1
	DefaultDeviceAttempts = 4

	DefaultSwapPriority = 100

	DefaultCopyTimeout = 1800 * time.Second
	DefaultWaitTimeout = 30 * time.Second
	MaxWaitTimeout     = 180 * time.Second

	DefaultHandoffPath = "/run/ramroot/handoff"
)

// Config is the full configuration surface of the engine. It is
// assembled once from defaults, the configuration file and the kernel
// command line, and read-only afterwards.
type Config struct {
	// Enabled is the activation trigger from the kernel command line.
	Enabled bool

	// Root is the raw root specification, e.g. "UUID=..." or a device
	// path.
	Root string

	// Compression and filesystem settings for the root zram device.
	Algorithm    string
	FSType       string
	MountOptions string

	// SizeMiB overrides capacity planning entirely when non-zero.
	SizeMiB int64

	// Capacity margins, all in MiB.
	BufferPercent  int
	RAMMinFreeMiB  int64
	RAMPrefFreeMiB int64
	DevMinFreeMiB  int64
	DevMaxFreeMiB  int64

	// RatioSample enables sample-compression instead of the fixed
	// compression ratio table.
	RatioSample bool

	// Device numbers and the provisioning attempt budget.
	DeviceNum      int
	SwapDeviceNum  int
	DeviceAttempts int

	// Swap device settings.
	SwapEnabled   bool
	SwapAlgorithm string
	SwapSizeMiB   int64
	SwapPriority  int

	// Copy engine settings.
	Include     []string
	Exclude     []string
	MountOnDisk []string
	Workers     int
	CopyStrict  bool
	CopyTimeout time.Duration

	// Device wait settings. RootDelay comes from the kernel command
	// line and scales WaitTimeout.
	RootDelay   time.Duration
	WaitTimeout time.Duration

	// Hints from the kernel command line for encrypted or LVM roots.
	LUKSName  string
	LUKSUUID  string
	LVMVolume string

	// Logging.
	Debug  bool
	LogDir string

	// HandoffPath is where the handoff record is written on success.
	HandoffPath string
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Algorithm:      DefaultAlgorithm,
		FSType:         DefaultFSType,
		MountOptions:   DefaultMountOptions,
		BufferPercent:  DefaultBufferPercent,
		RAMMinFreeMiB:  DefaultRAMMinFreeMiB,
		RAMPrefFreeMiB: DefaultRAMPrefFreeMiB,
		DevMinFreeMiB:  DefaultDevMinFreeMiB,
		DevMaxFreeMiB:  DefaultDevMaxFreeMiB,
		DeviceNum:      DefaultDeviceNum,
		SwapDeviceNum:  DefaultSwapDeviceNum,
		DeviceAttempts: DefaultDeviceAttempts,
		SwapAlgorithm:  DefaultAlgorithm,
		SwapPriority:   DefaultSwapPriority,
		CopyTimeout:    DefaultCopyTimeout,
		WaitTimeout:    DefaultWaitTimeout,
		HandoffPath:    DefaultHandoffPath,
	}
}

// LoadFile merges the key=value configuration file at path into c.
// A missing file is not an error, the defaults stay in place.
func (c *Config) LoadFile(path string) error {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	sec := file.Section("")

	if key, err := sec.GetKey("root"); err == nil {
		c.Root = key.String()
	}

	readString(sec, "zram_algorithm", &c.Algorithm)
	readString(sec, "zram_swap_algorithm", &c.SwapAlgorithm)
	readString(sec, "filesystem", &c.FSType)
	readString(sec, "mount_options", &c.MountOptions)
	readString(sec, "log_dir", &c.LogDir)

	readInt(sec, "buffer_percent", &c.BufferPercent)
	readInt(sec, "zram_device", &c.DeviceNum)
	readInt(sec, "zram_swap_device", &c.SwapDeviceNum)
	readInt(sec, "device_attempts", &c.DeviceAttempts)
	readInt(sec, "swap_priority", &c.SwapPriority)
	readInt(sec, "workers", &c.Workers)

	readBool(sec, "swap", &c.SwapEnabled)
	readBool(sec, "copy_strict", &c.CopyStrict)
	readBool(sec, "ratio_sample", &c.RatioSample)
	readBool(sec, "debug", &c.Debug)

	readList(sec, "include", &c.Include)
	readList(sec, "exclude", &c.Exclude)
	readList(sec, "mount_on_disk", &c.MountOnDisk)

	if err := readSizeMiB(sec, "zram_size", &c.SizeMiB); err != nil {
		return err
	}

	if err := readSizeMiB(sec, "zram_swap_size", &c.SwapSizeMiB); err != nil {
		return err
	}

	if err := readMarginMiB(sec, "ram_min_free", &c.RAMMinFreeMiB); err != nil {
		return err
	}

	if err := readMarginMiB(sec, "ram_pref_free", &c.RAMPrefFreeMiB); err != nil {
		return err
	}

	if err := readMarginMiB(sec, "dev_min_free", &c.DevMinFreeMiB); err != nil {
		return err
	}

	if err := readMarginMiB(sec, "dev_max_free", &c.DevMaxFreeMiB); err != nil {
		return err
	}

	if key, err := sec.GetKey("wait_timeout"); err == nil {
		secs, err := key.Int64()
		if err != nil {
			return fmt.Errorf("wait_timeout: %w", err)
		}

		c.WaitTimeout = time.Duration(secs) * time.Second
	}

	if key, err := sec.GetKey("copy_timeout"); err == nil {
		secs, err := key.Int64()
		if err != nil {
			return fmt.Errorf("copy_timeout: %w", err)
		}

		c.CopyTimeout = time.Duration(secs) * time.Second
	}

	return nil
}

// EffectiveWaitTimeout returns the device-appearance timeout, scaled by
// rootdelay and capped.
func (c *Config) EffectiveWaitTimeout() time.Duration {
	timeout := c.WaitTimeout + c.RootDelay
	if timeout > MaxWaitTimeout {
		timeout = MaxWaitTimeout
	}

	return timeout
}

func readString(sec *ini.Section, name string, dst *string) {
	if key, err := sec.GetKey(name); err == nil {
		*dst = key.String()
	}
}

func readInt(sec *ini.Section, name string, dst *int) {
	if key, err := sec.GetKey(name); err == nil {
		if v, err := key.Int(); err == nil {
			*dst = v
		}
	}
}

func readBool(sec *ini.Section, name string, dst *bool) {
	if key, err := sec.GetKey(name); err == nil {
		if v, err := key.Bool(); err == nil {
			*dst = v
		}
	}
}

func readList(sec *ini.Section, name string, dst *[]string) {
	key, err := sec.GetKey(name)
	if err != nil {
		return
	}

	var list []string

	for _, item := range strings.Split(key.String(), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}

	*dst = list
}

// readSizeMiB parses human readable sizes like "4G" or "512M".
func readSizeMiB(sec *ini.Section, name string, dst *int64) error {
	key, err := sec.GetKey(name)
	if err != nil {
		return nil
	}

	bytes, err := units.RAMInBytes(key.String())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*dst = bytes / units.MiB

	return nil
}

// readMarginMiB is like readSizeMiB but plain numbers are MiB already.
func readMarginMiB(sec *ini.Section, name string, dst *int64) error {
	key, err := sec.GetKey(name)
	if err != nil {
		return nil
	}

	if v, err := key.Int64(); err == nil {
		*dst = v
		return nil
	}

	return readSizeMiB(sec, name, dst)
}
