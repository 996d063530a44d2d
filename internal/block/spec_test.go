// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package block_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethr/ramroot/internal/block"
)

func TestParseRootSpec(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		expected    block.RootSpec
		expectedErr error
	}{
		{
			name: "uuid",
			raw:  "UUID=6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			expected: block.RootSpec{
				Kind:  block.SpecUUID,
				Value: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			},
		},
		{
			name: "label",
			raw:  "LABEL=arch-root",
			expected: block.RootSpec{
				Kind:  block.SpecLabel,
				Value: "arch-root",
			},
		},
		{
			name: "partuuid lowercase prefix",
			raw:  "partuuid=deadbeef-02",
			expected: block.RootSpec{
				Kind:  block.SpecPartUUID,
				Value: "deadbeef-02",
			},
		},
		{
			name: "plain path",
			raw:  "/dev/sda2",
			expected: block.RootSpec{
				Kind:  block.SpecPath,
				Value: "/dev/sda2",
			},
		},
		{
			name: "by-id path",
			raw:  "/dev/disk/by-id/wwn-0x5000c500a1b2c3d4-part2",
			expected: block.RootSpec{
				Kind:  block.SpecPath,
				Value: "/dev/disk/by-id/wwn-0x5000c500a1b2c3d4-part2",
			},
		},
		{
			name:        "malformed uuid",
			raw:         "UUID=not-a-uuid",
			expectedErr: block.ErrInvalidSpec,
		},
		{
			name:        "empty",
			raw:         "",
			expectedErr: block.ErrInvalidSpec,
		},
		{
			name:        "relative path",
			raw:         "sda2",
			expectedErr: block.ErrInvalidSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := block.ParseRootSpec(tt.raw)

			require.ErrorIs(t, err, tt.expectedErr)

			if tt.expectedErr == nil {
				assert.Equal(t, tt.expected, spec)
			}
		})
	}
}

func TestRootSpecString(t *testing.T) {
	spec := block.RootSpec{Kind: block.SpecLabel, Value: "root"}
	assert.Equal(t, "LABEL=root", spec.String())

	spec = block.RootSpec{Kind: block.SpecPath, Value: "/dev/sda1"}
	assert.Equal(t, "/dev/sda1", spec.String())
}
