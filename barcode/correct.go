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
	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/floats"
)

// Default configuration values. The confidence threshold matches the
// reference CellRanger-ATAC behavior, and the error floor matches the
// 10x tenkit floor on per-base error probabilities.
const (
	DefaultConfidenceThreshold = 0.975
	DefaultAmbiguityMargin     = 0.01
	DefaultErrorFloor          = 0.0005
	DefaultErrorCeiling        = 0.75
	DefaultAnyBaseLikelihood   = 0.25
	DefaultPriorFloor          = 1e-7
)

// A Config carries the tunables of the locator and corrector. The zero
// value is not usable; start from DefaultConfig.
type Config struct {
	// ExpectedOffset is a hint for where the barcode starts in a
	// read, derived from the library design. -1 means no hint.
	ExpectedOffset int
	// AllowedOffsets restricts the candidate window set of the
	// locator. nil means all offsets are allowed.
	AllowedOffsets *bitset.BitSet
	// ConfidenceThreshold is the minimum normalized posterior for a
	// correction to be accepted.
	ConfidenceThreshold float64
	// AmbiguityMargin is the minimum relative gap between the top two
	// normalized posteriors; below it the correction is Ambiguous.
	AmbiguityMargin float64
	// ErrorFloor and ErrorCeiling clamp per-base error probabilities,
	// so that extreme quality values cannot produce degenerate
	// zero-likelihood or certain-error products.
	ErrorFloor   float64
	ErrorCeiling float64
	// AnyBaseLikelihood is the fixed per-base likelihood factor
	// contributed by an N position.
	AnyBaseLikelihood float64
	// PriorFloor is the minimum prior probability assigned to
	// whitelist entries never observed during the counting pass.
	PriorFloor float64
	// TieBreak is the orientation preferred by the locator when both
	// orientations yield equally strong matches.
	TieBreak Orientation
}

// DefaultConfig returns a Config with the documented defaults, no
// offset hint, and unconstrained offsets.
func DefaultConfig() *Config {
	return &Config{
		ExpectedOffset:      -1,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		AmbiguityMargin:     DefaultAmbiguityMargin,
		ErrorFloor:          DefaultErrorFloor,
		ErrorCeiling:        DefaultErrorCeiling,
		AnyBaseLikelihood:   DefaultAnyBaseLikelihood,
		PriorFloor:          DefaultPriorFloor,
		TieBreak:            Forward,
	}
}

// Correct decides whether raw should be corrected to a whitelist entry,
// and to which one.
//
// If raw is itself a whitelist member, the decision is Exact. Otherwise
// the candidates are the whitelist entries within substitution distance
// 1 of raw; for each, the likelihood is the product over positions of
// 1-q at matching positions, q/3 at mismatching positions (the error
// mass split uniformly over the three alternative bases), and the
// any-base factor at N positions, with q the clamped per-base error
// probability. Candidate posteriors are the likelihoods weighted by the
// prior table and normalized. The decision is Ambiguous when the top
// two posteriors are within the ambiguity margin, Corrected when the
// top posterior reaches the confidence threshold, and Rejected
// otherwise (including when there are no candidates at all).
//
// raw or qual of the wrong length, or quality values below the phred+33
// range, yield an InputError.
func Correct(raw, qual []byte, idx *Index, priors *PriorTable, conf *Config) (Decision, error) {
	if len(raw) != idx.Length() {
		return Decision{Kind: Rejected}, inputErrorf("barcode length %v does not match whitelist barcode length %v", len(raw), idx.Length())
	}
	if len(qual) != len(raw) {
		return Decision{Kind: Rejected}, inputErrorf("quality length %v does not match barcode length %v", len(qual), len(raw))
	}
	for _, q := range qual {
		if q < phredOffset {
			return Decision{Kind: Rejected}, inputErrorf("quality value %v below the phred+%v range", q, phredOffset)
		}
	}
	ns := 0
	for _, b := range raw {
		if b == 'N' {
			ns++
		}
	}
	if ns == len(raw) {
		// all-N barcode carries no information
		return Decision{Kind: Rejected}, nil
	}
	if ns == 0 {
		if id, ok := idx.ExactID(raw); ok {
			return Decision{Kind: Exact, Barcode: idx.Entry(id), Confidence: 1}, nil
		}
	}
	ids, err := idx.Lookup(raw)
	if err != nil {
		return Decision{Kind: Rejected}, err
	}
	if len(ids) == 0 {
		return Decision{Kind: Rejected}, nil
	}
	errProbs := make([]float64, len(qual))
	for i, q := range qual {
		p := PhredProbability(q)
		if p < conf.ErrorFloor {
			p = conf.ErrorFloor
		} else if p > conf.ErrorCeiling {
			p = conf.ErrorCeiling
		}
		errProbs[i] = p
	}
	posteriors := make([]float64, len(ids))
	for k, id := range ids {
		w := idx.Entry(id)
		l := priors.Prior(id)
		for i := 0; i < len(raw); i++ {
			switch {
			case raw[i] == 'N':
				l *= conf.AnyBaseLikelihood
			case raw[i] == w[i]:
				l *= 1 - errProbs[i]
			default:
				l *= errProbs[i] / 3
			}
		}
		posteriors[k] = l
	}
	total := floats.Sum(posteriors)
	if total <= 0 {
		return Decision{Kind: Rejected}, nil
	}
	floats.Scale(1/total, posteriors)
	top, second := 0, -1
	for k := 1; k < len(posteriors); k++ {
		if posteriors[k] > posteriors[top] {
			second = top
			top = k
		} else if second < 0 || posteriors[k] > posteriors[second] {
			second = k
		}
	}
	if second >= 0 && posteriors[top]-posteriors[second] < conf.AmbiguityMargin*posteriors[top] {
		return Decision{Kind: Ambiguous}, nil
	}
	if posteriors[top] >= conf.ConfidenceThreshold {
		return Decision{Kind: Corrected, Barcode: idx.Entry(ids[top]), Confidence: posteriors[top]}, nil
	}
	return Decision{Kind: Rejected}, nil
}
