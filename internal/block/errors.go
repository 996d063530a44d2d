// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block

import "errors"

var (
	// ErrInvalidSpec is returned for a root specification that cannot be
	// parsed.
	ErrInvalidSpec = errors.New("invalid root specification")

	// ErrDeviceNotFound is returned if the specified device did not
	// appear within the wait budget.
	ErrDeviceNotFound = errors.New("device did not appear")

	// ErrProbeFailed is returned if filesystem metadata could not be
	// read from a device.
	ErrProbeFailed = errors.New("device probe failed")

	// ErrLVUnresolved is returned if the root is an LVM member but no
	// logical volume could be determined.
	ErrLVUnresolved = errors.New("logical volume not resolved")
)
