// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethr/ramroot/internal/boot"
)

func TestHandoffRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "handoff")

	record := boot.HandoffRecord{
		Device:       "/dev/zram0",
		FSType:       "ext4",
		MountOptions: "noatime",
	}

	require.NoError(t, boot.WriteHandoff(path, record))

	read, err := boot.ReadHandoff(path)
	require.NoError(t, err)

	assert.Equal(t, record, read)
}

func TestHandoffWriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff")

	record := boot.HandoffRecord{Device: "/dev/zram0", FSType: "ext4"}

	require.NoError(t, boot.WriteHandoff(path, record))

	err := boot.WriteHandoff(path, record)
	require.ErrorIs(t, err, boot.ErrHandoffExists)
}

func TestHandoffReadMissing(t *testing.T) {
	_, err := boot.ReadHandoff(filepath.Join(t.TempDir(), "handoff"))
	require.Error(t, err)
}

func TestHandoffReadIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff")

	require.NoError(t,
		os.WriteFile(path, []byte("device = /dev/zram0\n"), 0o644))

	_, err := boot.ReadHandoff(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestHandoffRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff")

	require.NoError(t, boot.WriteHandoff(path, boot.HandoffRecord{
		Device: "/dev/zram0",
		FSType: "ext4",
	}))

	require.NoError(t, boot.RemoveHandoff(path))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// Removing again is no error, fallback may run after a partial
	// attempt that never wrote the record.
	require.NoError(t, boot.RemoveHandoff(path))
}
