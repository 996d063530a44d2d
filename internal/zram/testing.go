// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package zram

import "github.com/sirupsen/logrus"

// NewFakeProvisioner returns a Provisioner rooted at sysRoot instead of
// the real /sys, with the swap and unmount release hooks stubbed out.
// It operates on a plain directory tree and exists for tests.
func NewFakeProvisioner(sysRoot string, logger logrus.FieldLogger) *Provisioner {
	return &Provisioner{
		sysRoot:      sysRoot,
		devDir:       "/dev",
		log:          logger,
		swapOff:      func(string) error { return nil },
		unmount:      func(string) error { return nil },
		deviceMounts: func(string) ([]string, error) { return nil, nil },
	}
}
