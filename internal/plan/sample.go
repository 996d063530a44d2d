// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package plan

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	// SampleBudget bounds how much data the estimator reads in total.
	SampleBudget = 64 * 1024 * 1024

	// samplePerFile bounds how much a single file contributes, so the
	// sample spreads across many files instead of one large archive.
	samplePerFile = 1024 * 1024

	// Measured ratios get clamped to stay inside plausible zram
	// territory even on pathological trees.
	sampleRatioMin = 1.2
	sampleRatioMax = 4.0
)

// SampleRatio estimates the compression ratio of the tree rooted at dir
// by compressing a bounded sample of its regular files with zstd. It is
// an opt-in alternative to the fixed table and trades reproducibility
// for accuracy.
func SampleRatio(dir string) (float64, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return 0, fmt.Errorf("init sampler: %w", err)
	}
	defer enc.Close()

	var rawTotal, compressedTotal int64

	buf := make([]byte, samplePerFile)

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			//nolint:nilerr // unreadable entries are skipped, not fatal
			return nil
		}

		if rawTotal >= SampleBudget {
			return filepath.SkipAll
		}

		n, err := readSample(path, buf)
		if err != nil || n == 0 {
			return nil
		}

		compressed := enc.EncodeAll(buf[:n], nil)

		rawTotal += int64(n)
		compressedTotal += int64(len(compressed))

		return nil
	}

	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return 0, fmt.Errorf("sample %s: %w", dir, err)
	}

	if compressedTotal == 0 {
		return DefaultRatio, nil
	}

	ratio := float64(rawTotal) / float64(compressedTotal)

	return min(max(ratio, sampleRatioMin), sampleRatioMax), nil
}

func readSample(path string, buf []byte) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	n, err := io.ReadFull(file, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}

	return n, err
}
