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

// maxQueryNs caps the 4^k expansion of N wildcards during lookups.
// Queries with more Ns than this produce an empty candidate set.
const maxQueryNs = 3

// An Index answers, for a query string of the whitelist barcode length,
// which whitelist entries lie within substitution distance 0 or 1 of it.
// It precomputes all single-substitution variants of every whitelist
// entry and maps each variant back to its origin entries, so a lookup
// is a constant number of hashed probes. Built once, then read-only.
type Index struct {
	length   int
	entries  []string
	exact    map[string]int32
	variants map[string][]int32
}

// NewIndex builds an Index from the raw whitelist. All entries must be
// nonempty, of identical length, and consist of uppercase ACGT only;
// otherwise a ConfigurationError is returned. Duplicate entries are
// collapsed.
func NewIndex(whitelist []string) (*Index, error) {
	if len(whitelist) == 0 {
		return nil, configurationErrorf("empty whitelist")
	}
	entries := make([]string, len(whitelist))
	copy(entries, whitelist)
	sort.Strings(entries)
	j := 0
	for i, w := range entries {
		if i == 0 || w != entries[j-1] {
			entries[j] = w
			j++
		}
	}
	entries = entries[:j]
	length := len(entries[0])
	if length == 0 {
		return nil, configurationErrorf("empty barcode in whitelist")
	}
	for _, w := range entries {
		if len(w) != length {
			return nil, configurationErrorf("inconsistent barcode lengths in whitelist: %v and %v", length, len(w))
		}
		for i := 0; i < len(w); i++ {
			switch w[i] {
			case 'A', 'C', 'G', 'T':
			default:
				return nil, configurationErrorf("invalid base %q in whitelist barcode %v", w[i], w)
			}
		}
	}
	exact := make(map[string]int32, len(entries))
	variants := make(map[string][]int32, 3*length*len(entries))
	buf := make([]byte, length)
	for i, w := range entries {
		id := int32(i)
		exact[w] = id
		copy(buf, w)
		for pos := 0; pos < length; pos++ {
			orig := buf[pos]
			for _, b := range nucleotides {
				if b == orig {
					continue
				}
				buf[pos] = b
				variants[string(buf)] = append(variants[string(buf)], id)
			}
			buf[pos] = orig
		}
	}
	return &Index{
		length:   length,
		entries:  entries,
		exact:    exact,
		variants: variants,
	}, nil
}

// Length returns the uniform barcode length of the whitelist.
func (idx *Index) Length() int {
	return idx.length
}

// Size returns the number of distinct whitelist entries.
func (idx *Index) Size() int {
	return len(idx.entries)
}

// Entry returns the whitelist entry with the given id.
func (idx *Index) Entry(id int32) string {
	return idx.entries[id]
}

// ExactID returns the id of the whitelist entry equal to query, if any.
func (idx *Index) ExactID(query []byte) (int32, bool) {
	id, ok := idx.exact[string(query)]
	return id, ok
}

// Lookup returns the ids of all whitelist entries within substitution
// distance 0 or 1 of query, where distance counts per-position
// mismatches over the non-N positions of query. N positions match any
// base without counting as a mismatch. A query of the wrong length is
// an InputError. Queries with more than maxQueryNs N positions return
// an empty set.
func (idx *Index) Lookup(query []byte) ([]int32, error) {
	if len(query) != idx.length {
		return nil, inputErrorf("query length %v does not match whitelist barcode length %v", len(query), idx.length)
	}
	var nPositions []int
	for i, b := range query {
		if b == 'N' {
			nPositions = append(nPositions, i)
		}
	}
	if len(nPositions) == 0 {
		return idx.lookupConcrete(query, nil), nil
	}
	if len(nPositions) > maxQueryNs {
		return nil, nil
	}
	// Expand each N to the four bases and union the lookups. Entries
	// that differ from query only at N positions come back through the
	// exact probes of the expansions; entries one substitution further
	// away come back through the variant probes.
	expanded := make([]byte, idx.length)
	copy(expanded, query)
	var ids []int32
	var expand func(k int)
	expand = func(k int) {
		if k == len(nPositions) {
			ids = idx.lookupConcrete(expanded, ids)
			return
		}
		for _, b := range nucleotides {
			expanded[nPositions[k]] = b
			expand(k + 1)
		}
	}
	expand(0)
	return dedupeIDs(ids), nil
}

// lookupConcrete appends to ids the entries within distance <= 1 of an
// N-free query.
func (idx *Index) lookupConcrete(query []byte, ids []int32) []int32 {
	if id, ok := idx.exact[string(query)]; ok {
		ids = append(ids, id)
	}
	return append(ids, idx.variants[string(query)]...)
}

func dedupeIDs(ids []int32) []int32 {
	if len(ids) < 2 {
		return ids
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	j := 1
	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[j-1] {
			ids[j] = ids[i]
			j++
		}
	}
	return ids[:j]
}
