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
	"bytes"
	"testing"
)

// q30 is the phred+33 character for an error probability of 0.001.
const q30 = '?'

func mustIndex(t *testing.T, whitelist ...string) *Index {
	t.Helper()
	idx, err := NewIndex(whitelist)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func mustCorrect(t *testing.T, raw, qual string, idx *Index, priors *PriorTable, conf *Config) Decision {
	t.Helper()
	decision, err := Correct([]byte(raw), []byte(qual), idx, priors, conf)
	if err != nil {
		t.Fatalf("Correct(%v) failed: %v", raw, err)
	}
	return decision
}

func uniformQual(length int, qual byte) string {
	return string(bytes.Repeat([]byte{qual}, length))
}

func TestCorrectExact(t *testing.T) {
	idx := mustIndex(t, "AACCGGTT", "AACCGGTA")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	decision := mustCorrect(t, "AACCGGTT", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Exact || decision.Barcode != "AACCGGTT" || decision.Confidence != 1 {
		t.Error("Correct exact failed")
	}
	// exact matches win regardless of base qualities
	decision = mustCorrect(t, "AACCGGTT", uniformQual(8, '!'), idx, priors, conf)
	if decision.Kind != Exact || decision.Barcode != "AACCGGTT" {
		t.Error("Correct exact with minimal qualities failed")
	}
}

func TestCorrectUniqueCandidate(t *testing.T) {
	idx := mustIndex(t, "ACGTACGT")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	decision := mustCorrect(t, "ACGTACGA", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Corrected || decision.Barcode != "ACGTACGT" {
		t.Error("Correct unique candidate failed")
	}
	if decision.Confidence < conf.ConfidenceThreshold {
		t.Error("Correct unique candidate confidence failed")
	}
}

func TestCorrectAmbiguous(t *testing.T) {
	idx := mustIndex(t, "AACCGGTT", "AACCGGTA")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	// equidistant candidates with uniform priors cannot be separated
	decision := mustCorrect(t, "AACCGGTC", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Ambiguous {
		t.Errorf("Correct ambiguous failed: got %v", decision.Kind)
	}
	if decision.Barcode != "" {
		t.Error("Correct ambiguous barcode failed")
	}
}

func TestCorrectSkewedPriors(t *testing.T) {
	idx := mustIndex(t, "AACCGGTT", "AACCGGTA")
	tally := NewTally(idx)
	id, ok := idx.ExactID([]byte("AACCGGTT"))
	if !ok {
		t.Fatal("whitelist entry not found")
	}
	tally.AddCount(id, 100000)
	priors := tally.Finalize(DefaultPriorFloor)
	conf := DefaultConfig()
	// the same equidistant raw barcode resolves once the priors are skewed
	decision := mustCorrect(t, "AACCGGTC", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Corrected || decision.Barcode != "AACCGGTT" {
		t.Errorf("Correct skewed priors failed: got %v %v", decision.Kind, decision.Barcode)
	}
	if decision.Confidence < conf.ConfidenceThreshold {
		t.Error("Correct skewed priors confidence failed")
	}
}

func TestCorrectRejected(t *testing.T) {
	idx := mustIndex(t, "AACCGGTT", "AACCGGTA")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	// distance >= 2 from every whitelist entry
	decision := mustCorrect(t, "TTTTTTTT", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Rejected {
		t.Error("Correct rejected 1 failed")
	}
	// an all-N barcode carries no information
	decision = mustCorrect(t, "NNNNNNNN", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Rejected {
		t.Error("Correct rejected 2 failed")
	}
	// too many Ns for the wildcard expansion
	decision = mustCorrect(t, "NNNNGGTT", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Rejected {
		t.Error("Correct rejected 3 failed")
	}
}

func TestCorrectBelowThreshold(t *testing.T) {
	idx := mustIndex(t, "AAAAC", "CAAAC", "GAAAC")
	tally := NewTally(idx)
	tally.AddCount(0, 6)
	tally.AddCount(1, 3)
	tally.AddCount(2, 1)
	priors := tally.Finalize(DefaultPriorFloor)
	conf := DefaultConfig()
	// three equidistant candidates; the priors separate them clearly,
	// but the top posterior of 0.6 stays below the confidence threshold
	decision := mustCorrect(t, "TAAAC", uniformQual(5, q30), idx, priors, conf)
	if decision.Kind != Rejected {
		t.Errorf("Correct below threshold failed: got %v", decision.Kind)
	}
}

func TestCorrectErrorCeiling(t *testing.T) {
	idx := mustIndex(t, "AAAA")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	// quality 0 on the matching positions means certain error; the
	// ceiling keeps their match factors above zero, so the candidate
	// survives instead of vanishing in a zero-likelihood product
	decision := mustCorrect(t, "AAAT", "!!!?", idx, priors, conf)
	if decision.Kind != Corrected || decision.Barcode != "AAAA" {
		t.Errorf("Correct error ceiling failed: got %v", decision.Kind)
	}
}

func TestCorrectErrorFloor(t *testing.T) {
	idx := mustIndex(t, "AAAC", "CAAA")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	// position 0 carries quality I (error probability 1e-4, below the
	// floor of 5e-4); the floored value keeps the weaker candidate CAAA
	// in play, capping the top confidence below what the raw quality
	// would yield (0.99978)
	decision := mustCorrect(t, "AAAA", "III&", idx, priors, conf)
	if decision.Kind != Corrected || decision.Barcode != "AAAC" {
		t.Errorf("Correct error floor failed: got %v %v", decision.Kind, decision.Barcode)
	}
	if decision.Confidence >= 0.9995 {
		t.Error("Correct error floor confidence failed")
	}
	if decision.Confidence < conf.ConfidenceThreshold {
		t.Error("Correct error floor threshold failed")
	}
}

func TestCorrectWildcard(t *testing.T) {
	idx := mustIndex(t, "AACCGGTT")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	decision := mustCorrect(t, "AACCGGTN", uniformQual(8, q30), idx, priors, conf)
	if decision.Kind != Corrected || decision.Barcode != "AACCGGTT" {
		t.Error("Correct wildcard failed")
	}
}

func TestCorrectInputErrors(t *testing.T) {
	idx := mustIndex(t, "AACCGGTT")
	priors := UniformPriors(idx.Size())
	conf := DefaultConfig()
	if _, err := Correct([]byte("AACC"), []byte(uniformQual(4, q30)), idx, priors, conf); err == nil {
		t.Error("Correct on wrong barcode length failed")
	} else if _, ok := err.(*InputError); !ok {
		t.Error("Correct length error is not an InputError")
	}
	if _, err := Correct([]byte("AACCGGTT"), []byte(uniformQual(7, q30)), idx, priors, conf); err == nil {
		t.Error("Correct on wrong quality length failed")
	}
	if _, err := Correct([]byte("AACCGGTT"), []byte(uniformQual(8, ' ')), idx, priors, conf); err == nil {
		t.Error("Correct on out-of-range quality failed")
	}
}
