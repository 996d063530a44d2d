// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package copy

import "errors"

var (
	// ErrEmptySource is returned if the source tree measures zero
	// size. Migrating nothing is always a configuration error.
	ErrEmptySource = errors.New("source tree is empty")

	// ErrTimeout is returned if the copy did not finish within the
	// overall budget.
	ErrTimeout = errors.New("copy timed out")

	// ErrUnitsFailed is returned in strict mode when at least one unit
	// exhausted its retries.
	ErrUnitsFailed = errors.New("units failed to copy")
)
