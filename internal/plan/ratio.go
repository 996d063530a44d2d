// SPDX-FileCopyrightText: 2025 Arne Thielen <arne@aethr.net>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package plan

// DefaultRatio is assumed for algorithms not in the table.
const DefaultRatio = 2.2

// ratioTable holds the policy estimates for zram compression
// algorithms. The values are deliberately fixed rather than measured so
// that planning stays reproducible across boots.
var ratioTable = map[string]float64{
	"zstd":    3.0,
	"lz4hc":   2.5,
	"lzo-rle": 2.1,
	"lzo":     2.0,
	"lz4":     1.8,
}

// RatioFor returns the estimated compression ratio for the given zram
// algorithm.
func RatioFor(algorithm string) float64 {
	if ratio, known := ratioTable[algorithm]; known {
		return ratio
	}

	return DefaultRatio
}
