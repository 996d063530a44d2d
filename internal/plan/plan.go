// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package plan computes the size of the compressed RAM device.
//
// The computation is a pure function of its inputs so a retried boot
// attempt recomputes a fresh plan instead of mutating an old one.
package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/docker/go-units"
)

// ErrInsufficientRAM is returned when the system does not have enough
// available memory to hold the compressed root plus the margins.
var ErrInsufficientRAM = errors.New("insufficient RAM for root migration")

// Inputs are the values the plan is derived from. All sizes are MiB.
type Inputs struct {
	// UsedMiB is the used space of the source filesystem.
	UsedMiB int64

	// BufferPercent is growth headroom added to the used space before
	// compression is applied.
	BufferPercent int

	// Ratio is the estimated compression ratio of the chosen algorithm.
	Ratio float64

	// TotalRAMMiB and AvailableRAMMiB describe system memory.
	TotalRAMMiB     int64
	AvailableRAMMiB int64

	// RAMMinFreeMiB must stay free for the system to operate at all;
	// RAMPrefFreeMiB is the comfortable margin that, when not
	// attainable, switches planning to tight mode.
	RAMMinFreeMiB  int64
	RAMPrefFreeMiB int64

	// DevMinFreeMiB and DevMaxFreeMiB bound the free space left on the
	// RAM device itself.
	DevMinFreeMiB int64
	DevMaxFreeMiB int64
}

// Plan is the computed capacity plan.
type Plan struct {
	Inputs

	// CompressedMiB is the estimated on-device size of the source data.
	CompressedMiB int64

	// TargetMiB is the size the RAM device is provisioned with.
	TargetMiB int64

	// Tight reports that the preferred free-RAM margin could not be
	// kept and the device got only its minimum free space.
	Tight bool
}

// safetyFloor returns the minimum defensible device size for the given
// compressed estimate. Compression estimates are guesses; a quarter of
// slack keeps an optimistic ratio from filling the device mid-copy.
func safetyFloor(compressedMiB int64) int64 {
	return (compressedMiB*5 + 3) / 4
}

// Compute derives the target device size. It is deterministic: equal
// inputs produce equal plans.
func Compute(in Inputs) (Plan, error) {
	if in.UsedMiB <= 0 {
		return Plan{}, fmt.Errorf(
			"used source size must be positive, got %d MiB", in.UsedMiB,
		)
	}

	if in.Ratio <= 0 {
		return Plan{}, fmt.Errorf(
			"compression ratio must be positive, got %g", in.Ratio,
		)
	}

	withBuffer := in.UsedMiB * int64(100+in.BufferPercent) / 100
	compressed := int64(math.Round(float64(withBuffer) / in.Ratio))

	p := Plan{Inputs: in, CompressedMiB: compressed}

	required := compressed + in.DevMinFreeMiB + in.RAMMinFreeMiB
	if in.AvailableRAMMiB < required {
		return Plan{}, fmt.Errorf(
			"%w: need %d MiB, have %d MiB available",
			ErrInsufficientRAM, required, in.AvailableRAMMiB,
		)
	}

	preferred := required + in.RAMPrefFreeMiB
	if in.AvailableRAMMiB < preferred {
		p.Tight = true
		p.TargetMiB = compressed + in.DevMinFreeMiB
	} else {
		headroom := in.AvailableRAMMiB - in.RAMPrefFreeMiB - compressed
		p.TargetMiB = compressed + in.DevMinFreeMiB +
			min(in.DevMaxFreeMiB, headroom)
	}

	if floor := safetyFloor(compressed); p.TargetMiB < floor {
		p.TargetMiB = floor
	}

	return p, nil
}

func (p Plan) String() string {
	mode := "generous"
	if p.Tight {
		mode = "tight"
	}

	return fmt.Sprintf(
		"target %s (%s compressed from %s used, %s mode)",
		units.BytesSize(float64(p.TargetMiB)*units.MiB),
		units.BytesSize(float64(p.CompressedMiB)*units.MiB),
		units.BytesSize(float64(p.UsedMiB)*units.MiB),
		mode,
	)
}
