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
	"runtime"
	"sync/atomic"

	psync "github.com/exascience/pargo/sync"

	"github.com/porchard/snatac-barcode-processor/internal"
)

type memoKey struct {
	seq  string
	qual string
}

func (k memoKey) Hash() uint64 {
	return internal.StringHash(k.seq) ^ internal.StringHash(k.qual)
}

// A DecisionCache memoizes correction decisions keyed by the extracted
// barcode and its quality string. It is size-bounded: once the capacity
// is reached, new entries are dropped and existing entries keep being
// served. Safe for concurrent use; pass it explicitly to the evaluation
// that should share it, there is no global instance.
type DecisionCache struct {
	m    *psync.Map
	size int64
	cap  int64
}

// NewDecisionCache returns a cache holding up to capacity decisions.
// A capacity <= 0 returns nil, which disables memoization; all
// DecisionCache methods are safe to call on a nil cache.
func NewDecisionCache(capacity int) *DecisionCache {
	if capacity <= 0 {
		return nil
	}
	return &DecisionCache{
		m:   psync.NewMap(16 * runtime.GOMAXPROCS(0)),
		cap: int64(capacity),
	}
}

// Lookup returns the memoized decision for the given barcode and
// quality, if any.
func (c *DecisionCache) Lookup(seq, qual []byte) (Decision, bool) {
	if c == nil {
		return Decision{}, false
	}
	entry, ok := c.m.Load(memoKey{seq: string(seq), qual: string(qual)})
	if !ok {
		return Decision{}, false
	}
	return entry.(Decision), true
}

// Store memoizes a decision, unless the cache is already full.
func (c *DecisionCache) Store(seq, qual []byte, decision Decision) {
	if c == nil || atomic.LoadInt64(&c.size) >= c.cap {
		return
	}
	if _, found := c.m.LoadOrStore(memoKey{seq: string(seq), qual: string(qual)}, decision); !found {
		atomic.AddInt64(&c.size, 1)
	}
}

// Len returns the number of memoized decisions.
func (c *DecisionCache) Len() int {
	if c == nil {
		return 0
	}
	return int(atomic.LoadInt64(&c.size))
}
