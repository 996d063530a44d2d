// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultCmdlinePath = "/proc/cmdline"

// LoadCmdline reads the kernel command line and applies the parameters
// the engine recognizes. An empty path uses /proc/cmdline. Command line
// values take precedence over the configuration file.
func (c *Config) LoadCmdline(path string) error {
	if path == "" {
		path = defaultCmdlinePath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cmdline: %w", err)
	}

	c.applyCmdline(string(raw))

	return nil
}

func (c *Config) applyCmdline(cmdline string) {
	for _, param := range strings.Fields(cmdline) {
		name, value, hasValue := strings.Cut(param, "=")

		switch name {
		case "ramroot":
			// Bare flag or a comma list of toggles.
			c.Enabled = true

			if hasValue {
				c.applyToggles(value)
			}
		case "root":
			c.Root = value
		case "rootdelay":
			if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
				c.RootDelay = time.Duration(secs) * time.Second
			}
		case "rd.luks.name", "luks.name":
			// Format: <uuid>=<mapper name>.
			if uuid, mapper, ok := strings.Cut(value, "="); ok {
				c.LUKSUUID = uuid
				c.LUKSName = mapper
			}
		case "rd.luks.uuid", "luks.uuid":
			c.LUKSUUID = value
		case "rd.lvm.lv", "lvm.lv":
			c.LVMVolume = value
		}
	}
}

func (c *Config) applyToggles(value string) {
	for _, toggle := range strings.Split(value, ",") {
		switch toggle {
		case "swap":
			c.SwapEnabled = true
		case "debug":
			c.Debug = true
		case "strict":
			c.CopyStrict = true
		}
	}
}
