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

// Package barcode locates and corrects fixed-length cell barcodes in
// sequencing reads against a whitelist of known-valid barcodes, using a
// quality-aware probabilistic model.
package barcode

import (
	"fmt"
	"math"
)

// phredOffset is the Illumina quality score offset.
const phredOffset = 33

// nucleotides are the unambiguous bases, in lexicographic order.
var nucleotides = [4]byte{'A', 'C', 'G', 'T'}

var complement [256]byte

func init() {
	complement['A'] = 'T'
	complement['C'] = 'G'
	complement['G'] = 'C'
	complement['T'] = 'A'
	complement['N'] = 'N'
}

// ReverseComplementSeq returns the reverse complement of seq. Bases
// outside ACGTN map to N.
func ReverseComplementSeq(seq []byte) []byte {
	result := make([]byte, len(seq))
	for i, b := range seq {
		c := complement[b]
		if c == 0 {
			c = 'N'
		}
		result[len(seq)-i-1] = c
	}
	return result
}

// ReverseQual returns qual in reverse order, for pairing with a
// reverse-complemented sequence.
func ReverseQual(qual []byte) []byte {
	result := make([]byte, len(qual))
	for i, q := range qual {
		result[len(qual)-i-1] = q
	}
	return result
}

// PhredProbability converts a phred+33 quality byte into the
// probability that the base was called incorrectly.
func PhredProbability(qual byte) float64 {
	return math.Pow(10, -(float64(qual)-phredOffset)/10)
}

// A ConfigurationError reports a malformed whitelist or invalid
// configuration. It is fatal and surfaced before any reads are
// processed.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func configurationErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// An InputError reports a single malformed read input (wrong barcode or
// quality length, or out-of-range quality values). It is non-fatal: the
// read's decision becomes Rejected/NotFound and processing continues.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func inputErrorf(format string, args ...interface{}) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// A DecisionKind classifies the outcome of a correction attempt.
type DecisionKind int

const (
	// Exact means the barcode is already a whitelist member.
	Exact DecisionKind = iota
	// Corrected means the barcode was corrected to a whitelist member.
	Corrected
	// Ambiguous means the top candidates could not be separated.
	Ambiguous
	// Rejected means no candidate was acceptable.
	Rejected
)

func (k DecisionKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Corrected:
		return "corrected"
	case Ambiguous:
		return "ambiguous"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// A Decision is the outcome of correcting a single barcode. Barcode is
// the whitelist entry for Exact and Corrected decisions, and empty
// otherwise. Confidence is the normalized posterior probability of the
// chosen entry (1 for Exact).
type Decision struct {
	Kind       DecisionKind
	Barcode    string
	Confidence float64
}

// An Orientation tells in which direction of a read a
// whitelist-consistent barcode was found.
type Orientation int

const (
	// Forward means the barcode occurs in the read as given.
	Forward Orientation = iota
	// ReverseComplement means the barcode occurs in the reverse
	// complement of the read.
	ReverseComplement
	// NotFound means no offset in either direction yielded a
	// whitelist-consistent barcode.
	NotFound
)

func (o Orientation) String() string {
	switch o {
	case Forward:
		return "forward"
	case ReverseComplement:
		return "reverse-complement"
	case NotFound:
		return "not-found"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// A Location is the outcome of locating a barcode in a read. For
// ReverseComplement, Offset indexes into the reverse complement of the
// read, and Barcode and Qual are already in canonical (whitelist)
// orientation.
type Location struct {
	Orientation Orientation
	Offset      int
	Barcode     []byte
	Qual        []byte
}
