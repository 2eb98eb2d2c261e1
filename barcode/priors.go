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
	"log"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/floats"
)

// A Tally accumulates exact-match observations for whitelist entries
// during the optional counting pass. A Tally is not safe for concurrent
// use; concurrent passes keep one Tally per batch and Merge them at
// pass end.
type Tally struct {
	counts []int64
}

// NewTally returns an empty Tally sized for the given index.
func NewTally(idx *Index) *Tally {
	return &Tally{counts: make([]int64, idx.Size())}
}

// Add records one exact-match observation of the whitelist entry with
// the given id.
func (t *Tally) Add(id int32) {
	t.counts[id]++
}

// AddCount records n observations of the whitelist entry with the
// given id.
func (t *Tally) AddCount(id int32, n int64) {
	t.counts[id] += n
}

// Count returns the number of observations recorded for the given id.
func (t *Tally) Count(id int32) int64 {
	return t.counts[id]
}

// Merge adds the observations of other into t.
func (t *Tally) Merge(other *Tally) {
	if len(t.counts) != len(other.counts) {
		log.Panicf("merging tallies of different sizes: %v and %v", len(t.counts), len(other.counts))
	}
	for i, c := range other.counts {
		t.counts[i] += c
	}
}

// Total returns the total number of observations.
func (t *Tally) Total() int64 {
	result := parallel.RangeReduce(0, len(t.counts), 0, func(low, high int) interface{} {
		var sum int64
		for _, c := range t.counts[low:high] {
			sum += c
		}
		return sum
	}, func(x, y interface{}) interface{} {
		return x.(int64) + y.(int64)
	})
	return result.(int64)
}

// Finalize freezes the tally into a PriorTable. Each entry's prior is
// its observed fraction of the total, raised to at least floor so that
// valid-but-rare barcodes are never eliminated from candidacy, then
// renormalized. A tally with no observations finalizes to uniform
// priors.
func (t *Tally) Finalize(floor float64) *PriorTable {
	total := t.Total()
	if total == 0 {
		return UniformPriors(len(t.counts))
	}
	probs := make([]float64, len(t.counts))
	for i, c := range t.counts {
		p := float64(c) / float64(total)
		if p < floor {
			p = floor
		}
		probs[i] = p
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return &PriorTable{probs: probs}
}

// A PriorTable maps each whitelist entry to its estimated prior
// probability of occurrence. Frozen once built; safe for concurrent
// reads.
type PriorTable struct {
	probs   []float64
	uniform float64
}

// UniformPriors returns a PriorTable assigning 1/n to each of n
// whitelist entries, for runs without a counting pass.
func UniformPriors(n int) *PriorTable {
	return &PriorTable{uniform: 1 / float64(n)}
}

// Prior returns the prior probability of the whitelist entry with the
// given id.
func (p *PriorTable) Prior(id int32) float64 {
	if p.probs == nil {
		return p.uniform
	}
	return p.probs[id]
}

// Uniform reports whether the table assigns the same prior to every
// entry.
func (p *PriorTable) Uniform() bool {
	return p.probs == nil
}
