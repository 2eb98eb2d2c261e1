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
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/porchard/snatac-barcode-processor/internal"
)

// ReadWhitelist reads a whitelist file with one barcode per line.
// Empty lines and lines starting with # are skipped. Validation of the
// entries happens in NewIndex.
func ReadWhitelist(filename string) []string {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	var whitelist []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		whitelist = append(whitelist, line)
	}
	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}

	return whitelist
}

// ReadCounts parses a barcode counts file with one barcode and its
// observed count per line, tab-separated, into a Tally over the given
// index. It returns the tally and the number of lines whose barcode is
// not a whitelist member (these are skipped).
func ReadCounts(filename string, idx *Index) (tally *Tally, skipped int) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	tally = NewTally(idx)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fields := bytes.Split(line, []byte("\t"))
		if len(fields) != 2 {
			log.Panicf("badly formatted counts file %v - invalid number of fields", filename)
		}
		id, ok := idx.ExactID(fields[0])
		if !ok {
			skipped++
			continue
		}
		tally.AddCount(id, internal.ParseInt(string(fields[1]), 10, 64))
	}
	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}

	return tally, skipped
}

// WriteCounts writes the observed count of every whitelist entry to a
// tab-separated counts file that ReadCounts can parse back. The counts
// go to a uniquely named temporary file next to the destination, which
// is renamed into place once complete, so that readers never observe a
// partial counts file.
func WriteCounts(filename string, idx *Index, tally *Tally) {
	tmpPath := filepath.Join(filepath.Dir(filename), fmt.Sprintf(".%s.%s.tmp", filepath.Base(filename), uuid.NewString()))
	f := internal.FileCreate(tmpPath)

	writer := bufio.NewWriter(f)
	for id := 0; id < idx.Size(); id++ {
		fmt.Fprintf(writer, "%s\t%d\n", idx.Entry(int32(id)), tally.Count(int32(id)))
	}
	if err := writer.Flush(); err != nil {
		log.Panic(err)
	}
	internal.Close(f)
	if err := os.Rename(tmpPath, filename); err != nil {
		log.Panic(err)
	}
}
