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

import "sort"

// A Locator scans a read for the most likely offset and orientation of
// a whitelist-consistent barcode. Safe for concurrent use; it only
// reads the frozen index and configuration.
type Locator struct {
	idx  *Index
	conf *Config
}

// NewLocator returns a Locator over the given index and configuration.
func NewLocator(idx *Index, conf *Config) *Locator {
	return &Locator{idx: idx, conf: conf}
}

// Locate determines the most likely offset and orientation at which a
// whitelist-consistent barcode occurs in seq, and returns the extracted
// barcode and quality slice for that window.
//
// Candidate offsets are all windows of the barcode length (restricted
// by Config.AllowedOffsets when set). Each offset is probed in both the
// read as given and its reverse complement. An offset/orientation
// yielding an exact whitelist match is always preferred over a
// distance-1 match; among equals, the offset closest to
// Config.ExpectedOffset wins (ascending offset when there is no hint),
// and Config.TieBreak decides between orientations. A read shorter than
// the barcode length, or one whose quality length disagrees with its
// sequence length, locates nothing.
func (loc *Locator) Locate(seq, qual []byte) Location {
	length := loc.idx.Length()
	if len(seq) < length || len(qual) != len(seq) {
		return Location{Orientation: NotFound}
	}
	rcSeq := ReverseComplementSeq(seq)
	rcQual := ReverseQual(qual)
	orientations := [2]Orientation{Forward, ReverseComplement}
	if loc.conf.TieBreak == ReverseComplement {
		orientations[0], orientations[1] = orientations[1], orientations[0]
	}

	var fallback Location
	fallback.Orientation = NotFound
	for _, offset := range loc.candidateOffsets(len(seq) - length) {
		for _, orientation := range orientations {
			s, q := seq, qual
			if orientation == ReverseComplement {
				s, q = rcSeq, rcQual
			}
			window := s[offset : offset+length]
			if _, ok := loc.idx.ExactID(window); ok {
				return Location{
					Orientation: orientation,
					Offset:      offset,
					Barcode:     window,
					Qual:        q[offset : offset+length],
				}
			}
			if fallback.Orientation != NotFound {
				continue
			}
			if ids, _ := loc.idx.Lookup(window); len(ids) > 0 {
				fallback = Location{
					Orientation: orientation,
					Offset:      offset,
					Barcode:     window,
					Qual:        q[offset : offset+length],
				}
			}
		}
	}
	return fallback
}

// candidateOffsets returns the allowed offsets 0..maxOffset in
// preference order: closest to the expected offset first when a hint is
// configured, ascending otherwise.
func (loc *Locator) candidateOffsets(maxOffset int) []int {
	offsets := make([]int, 0, maxOffset+1)
	for offset := 0; offset <= maxOffset; offset++ {
		if loc.conf.AllowedOffsets != nil && !loc.conf.AllowedOffsets.Test(uint(offset)) {
			continue
		}
		offsets = append(offsets, offset)
	}
	if expected := loc.conf.ExpectedOffset; expected >= 0 {
		sort.SliceStable(offsets, func(i, j int) bool {
			di, dj := absInt(offsets[i]-expected), absInt(offsets[j]-expected)
			if di != dj {
				return di < dj
			}
			return offsets[i] < offsets[j]
		})
	}
	return offsets
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
