// snatac-barcode-processor: a tool for locating and correcting cell barcodes
// in single-nucleus ATAC-seq reads.
// Copyright (c) 2024 the snatac-barcode-processor authors.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/porchard/snatac-barcode-processor/blob/master/LICENSE.txt>.

package barcode

import (
	"math"
	"testing"
)

func TestUniformPriors(t *testing.T) {
	priors := UniformPriors(4)
	if !priors.Uniform() {
		t.Error("UniformPriors uniform failed")
	}
	for id := int32(0); id < 4; id++ {
		if priors.Prior(id) != 0.25 {
			t.Error("UniformPriors prior failed")
		}
	}
}

func TestTally(t *testing.T) {
	idx := mustIndex(t, "AAAA", "CCCC", "GGGG")
	tally := NewTally(idx)
	tally.Add(0)
	tally.Add(0)
	tally.AddCount(1, 3)
	if tally.Count(0) != 2 || tally.Count(1) != 3 || tally.Count(2) != 0 {
		t.Error("Tally counts failed")
	}
	if tally.Total() != 5 {
		t.Error("Tally total failed")
	}
	other := NewTally(idx)
	other.AddCount(2, 4)
	other.Add(0)
	tally.Merge(other)
	if tally.Count(0) != 3 || tally.Count(1) != 3 || tally.Count(2) != 4 {
		t.Error("Tally merge failed")
	}
	if tally.Total() != 10 {
		t.Error("Tally total after merge failed")
	}
}

func TestFinalize(t *testing.T) {
	idx := mustIndex(t, "AAAA", "CCCC", "GGGG")
	tally := NewTally(idx)
	tally.AddCount(0, 6)
	tally.AddCount(1, 3)
	tally.AddCount(2, 1)
	priors := tally.Finalize(DefaultPriorFloor)
	if priors.Uniform() {
		t.Error("Finalize uniform failed")
	}
	sum := priors.Prior(0) + priors.Prior(1) + priors.Prior(2)
	if math.Abs(sum-1) > 1e-12 {
		t.Error("Finalize normalization failed")
	}
	if math.Abs(priors.Prior(0)-0.6) > 1e-6 || math.Abs(priors.Prior(1)-0.3) > 1e-6 {
		t.Error("Finalize fractions failed")
	}
}

func TestFinalizeFloor(t *testing.T) {
	idx := mustIndex(t, "AAAA", "CCCC")
	tally := NewTally(idx)
	tally.AddCount(0, 1000)
	priors := tally.Finalize(DefaultPriorFloor)
	// never-observed entries keep a nonzero prior
	if priors.Prior(1) <= 0 {
		t.Error("Finalize floor failed")
	}
	if priors.Prior(0) <= priors.Prior(1) {
		t.Error("Finalize floor ordering failed")
	}
	// a tally without observations finalizes to uniform priors
	if !NewTally(idx).Finalize(DefaultPriorFloor).Uniform() {
		t.Error("Finalize empty tally failed")
	}
}
