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
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/exascience/pargo/pipeline"

	"github.com/porchard/snatac-barcode-processor/fastq"
)

const (
	minBatchSize = 4096
	maxBatchSize = 262144

	progressInterval = 1000000
)

// Stats counts per-read outcomes of a correction pass. All fields are
// updated with atomic adds during the parallel phase of the pipeline.
type Stats struct {
	Total             int64
	MatchedBefore     int64
	MatchedAfter      int64
	CorrectedBarcodes int64
	AmbiguousBarcodes int64
	RejectedBarcodes  int64
	NotFoundBarcodes  int64
	InvalidReads      int64
}

// A Processor evaluates reads against a frozen index and prior table.
// The per-read evaluation is a pure function of its inputs, so a single
// Processor is shared across all pipeline workers.
type Processor struct {
	Stats   Stats
	index   *Index
	priors  *PriorTable
	conf    *Config
	cache   *DecisionCache
	locator *Locator
}

// NewProcessor returns a Processor over the given frozen structures.
// cache may be nil to disable memoization.
func NewProcessor(idx *Index, priors *PriorTable, conf *Config, cache *DecisionCache) *Processor {
	return &Processor{
		index:   idx,
		priors:  priors,
		conf:    conf,
		cache:   cache,
		locator: NewLocator(idx, conf),
	}
}

// Process locates and corrects the barcode of a single read and
// rewrites the record description with the CR/CB/CY tags. It returns
// the location and correction decisions.
func (proc *Processor) Process(record *fastq.Record) (Location, Decision) {
	atomic.AddInt64(&proc.Stats.Total, 1)
	location := proc.locator.Locate(record.Seq, record.Qual)
	if location.Orientation == NotFound {
		atomic.AddInt64(&proc.Stats.NotFoundBarcodes, 1)
		return location, Decision{Kind: Rejected}
	}
	decision, cached := proc.cache.Lookup(location.Barcode, location.Qual)
	if !cached {
		var err error
		decision, err = Correct(location.Barcode, location.Qual, proc.index, proc.priors, proc.conf)
		if err != nil {
			// invalid reads are counted apart from rejected ones, so the
			// per-category counts sum to the total
			atomic.AddInt64(&proc.Stats.InvalidReads, 1)
			decision = Decision{Kind: Rejected}
			record.SetBarcodeTags(location.Barcode, nil, location.Qual)
			return location, decision
		}
		proc.cache.Store(location.Barcode, location.Qual, decision)
	}
	switch decision.Kind {
	case Exact:
		atomic.AddInt64(&proc.Stats.MatchedBefore, 1)
		atomic.AddInt64(&proc.Stats.MatchedAfter, 1)
		record.SetBarcodeTags(location.Barcode, []byte(decision.Barcode), location.Qual)
	case Corrected:
		atomic.AddInt64(&proc.Stats.CorrectedBarcodes, 1)
		atomic.AddInt64(&proc.Stats.MatchedAfter, 1)
		record.SetBarcodeTags(location.Barcode, []byte(decision.Barcode), location.Qual)
	case Ambiguous:
		atomic.AddInt64(&proc.Stats.AmbiguousBarcodes, 1)
		record.SetBarcodeTags(location.Barcode, nil, location.Qual)
	default:
		atomic.AddInt64(&proc.Stats.RejectedBarcodes, 1)
		record.SetBarcodeTags(location.Barcode, nil, location.Qual)
	}
	return location, decision
}

// CorrectRecords returns a pargo pipeline.Filter that runs Process on
// every record of the batches it receives.
func (proc *Processor) CorrectRecords() pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			records := data.([]*fastq.Record)
			for _, record := range records {
				proc.Process(record)
			}
			return records
		}
		return
	}
}

// RunCorrectionPass streams input through parallel locate/correct
// workers into output, preserving the input record order.
func (proc *Processor) RunCorrectionPass(input *fastq.InputFile, output *fastq.OutputFile) error {
	var written int64
	var p pipeline.Pipeline
	p.Source(input)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(
		pipeline.LimitedPar(0, proc.CorrectRecords()),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			records := data.([]*fastq.Record)
			for _, record := range records {
				if err := output.WriteRecord(record); err != nil {
					p.SetErr(fmt.Errorf("%v, while writing FASTQ records to output", err))
					return nil
				}
			}
			if before := written / progressInterval; (written+int64(len(records)))/progressInterval > before {
				log.Printf("Processed %v records so far; %v matched whitelist before correction, %v matched whitelist after correction",
					written+int64(len(records)),
					atomic.LoadInt64(&proc.Stats.MatchedBefore),
					atomic.LoadInt64(&proc.Stats.MatchedAfter))
			}
			written += int64(len(records))
			return nil
		})),
	)
	p.Run()
	return p.Err()
}

// LogStats writes the closing summary of a correction pass to the log.
func (proc *Processor) LogStats() {
	s := &proc.Stats
	log.Printf("Processed %v records; %v matched whitelist before correction, %v matched whitelist after correction",
		s.Total, s.MatchedBefore, s.MatchedAfter)
	log.Printf("Corrected: %v, ambiguous: %v, rejected: %v, no barcode found: %v, invalid reads: %v",
		s.CorrectedBarcodes, s.AmbiguousBarcodes, s.RejectedBarcodes, s.NotFoundBarcodes, s.InvalidReads)
}

// RunCountingPass streams input once, counting reads whose located
// barcode exactly matches a whitelist entry, into master. Each parallel
// batch accumulates into its own Tally; the partial tallies are merged
// by a sequential node, so the whitelist counters are never contended.
// master must not be used for correction decisions until this function
// has returned.
func RunCountingPass(input *fastq.InputFile, idx *Index, conf *Config, master *Tally) error {
	if master == nil {
		return errors.New("no tally given to the counting pass")
	}
	locator := NewLocator(idx, conf)
	var p pipeline.Pipeline
	p.Source(input)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			records := data.([]*fastq.Record)
			tally := NewTally(idx)
			for _, record := range records {
				location := locator.Locate(record.Seq, record.Qual)
				if location.Orientation == NotFound {
					continue
				}
				if id, ok := idx.ExactID(location.Barcode); ok {
					tally.Add(id)
				}
			}
			return tally
		})),
		pipeline.Seq(pipeline.Receive(func(_ int, data interface{}) interface{} {
			master.Merge(data.(*Tally))
			return nil
		})),
	)
	p.Run()
	return p.Err()
}
