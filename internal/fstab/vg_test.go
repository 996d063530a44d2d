// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package fstab_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethr/ramroot/internal/block"
	"github.com/aethr/ramroot/internal/fstab"
)

func TestDetectVolumeGroupViaDmsetup(t *testing.T) {
	runner := &block.FakeRunner{}
	runner.Script(
		"dmsetup splitname --noheadings --separator / vg0-root",
		block.FakeResult{Output: "vg0/root/"},
	)

	vg := fstab.DetectVolumeGroup(
		context.Background(), runner, "/dev/mapper/vg0-root")
	assert.Equal(t, "vg0", vg)
}

func TestDetectVolumeGroupFallback(t *testing.T) {
	runner := &block.FakeRunner{}
	runner.Script(
		"dmsetup splitname --noheadings --separator / my--vg-root",
		block.FakeResult{Err: errors.New("dmsetup not found")},
	)

	vg := fstab.DetectVolumeGroup(
		context.Background(), runner, "/dev/mapper/my--vg-root")
	assert.Equal(t, "my-vg", vg)
}

func TestDetectVolumeGroupPlainDevice(t *testing.T) {
	runner := &block.FakeRunner{}
	runner.Script(
		"dmsetup splitname --noheadings --separator / sda2",
		block.FakeResult{Err: errors.New("not a dm device")},
	)

	vg := fstab.DetectVolumeGroup(context.Background(), runner, "/dev/sda2")
	assert.Empty(t, vg)
}
