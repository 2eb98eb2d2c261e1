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

import "testing"

func TestDecisionCache(t *testing.T) {
	cache := NewDecisionCache(10)
	if _, ok := cache.Lookup([]byte("AAAA"), []byte("IIII")); ok {
		t.Error("DecisionCache empty lookup failed")
	}
	decision := Decision{Kind: Corrected, Barcode: "AAAA", Confidence: 0.99}
	cache.Store([]byte("AAAT"), []byte("IIII"), decision)
	if got, ok := cache.Lookup([]byte("AAAT"), []byte("IIII")); !ok || got != decision {
		t.Error("DecisionCache lookup failed")
	}
	// the quality string is part of the key
	if _, ok := cache.Lookup([]byte("AAAT"), []byte("!!!!")); ok {
		t.Error("DecisionCache quality key failed")
	}
	if cache.Len() != 1 {
		t.Error("DecisionCache len failed")
	}
}

func TestDecisionCacheCapacity(t *testing.T) {
	cache := NewDecisionCache(2)
	cache.Store([]byte("AAAA"), []byte("IIII"), Decision{Kind: Exact, Barcode: "AAAA", Confidence: 1})
	cache.Store([]byte("CCCC"), []byte("IIII"), Decision{Kind: Exact, Barcode: "CCCC", Confidence: 1})
	cache.Store([]byte("GGGG"), []byte("IIII"), Decision{Kind: Exact, Barcode: "GGGG", Confidence: 1})
	if cache.Len() != 2 {
		t.Error("DecisionCache capacity failed")
	}
	if _, ok := cache.Lookup([]byte("GGGG"), []byte("IIII")); ok {
		t.Error("DecisionCache overflow insert failed")
	}
	if _, ok := cache.Lookup([]byte("AAAA"), []byte("IIII")); !ok {
		t.Error("DecisionCache retained entry failed")
	}
}

func TestDecisionCacheDisabled(t *testing.T) {
	cache := NewDecisionCache(0)
	if cache != nil {
		t.Error("DecisionCache disabled construction failed")
	}
	// all methods are safe on a nil cache
	cache.Store([]byte("AAAA"), []byte("IIII"), Decision{Kind: Exact})
	if _, ok := cache.Lookup([]byte("AAAA"), []byte("IIII")); ok {
		t.Error("DecisionCache disabled lookup failed")
	}
	if cache.Len() != 0 {
		t.Error("DecisionCache disabled len failed")
	}
}
