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

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/porchard/snatac-barcode-processor/barcode"
	"github.com/porchard/snatac-barcode-processor/fastq"
	"github.com/porchard/snatac-barcode-processor/internal"
)

// CountHelp is the help string for the snbc count command.
const CountHelp = "count parameters:\n" +
	"snbc count input.fastq[.gz] counts.tsv\n" +
	"--whitelist file\n" +
	"[--expected-offset n]\n" +
	"[--max-offset n]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile prefix]\n" +
	"[--log-path path]\n"

// Count implements the snbc count command: a standalone exact-match
// counting pass whose output can be fed back to correct --counts.
func Count() error {
	var (
		whitelistFile             string
		expectedOffset, maxOffset int
		nrOfThreads               int
		timed                     bool
		profile, logPath          string
	)

	var flags flag.FlagSet

	flags.StringVar(&whitelistFile, "whitelist", "", "whitelist of valid barcodes, one per line")
	flags.IntVar(&expectedOffset, "expected-offset", -1, "hint for the barcode start position in a read")
	flags.IntVar(&maxOffset, "max-offset", -1, "restrict candidate barcode offsets to 0..n")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, CountHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], CountHelp)
	output := getFilename(os.Args[3], CountHelp)

	parseFlags(&flags, 4, CountHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if !checkExist("--whitelist", whitelistFile) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CountHelp)
		os.Exit(1)
	}

	conf := barcode.DefaultConfig()
	conf.ExpectedOffset = expectedOffset
	if maxOffset >= 0 {
		conf.AllowedOffsets = offsetMask(maxOffset)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " count ", input, " ", output)
	fmt.Fprint(&command, " --whitelist ", whitelistFile)
	if expectedOffset >= 0 {
		fmt.Fprint(&command, " --expected-offset ", expectedOffset)
	}
	if maxOffset >= 0 {
		fmt.Fprint(&command, " --max-offset ", maxOffset)
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	fullInput, err := internal.FullPathname(input)
	if err != nil {
		return err
	}
	fullOutput, err := internal.FullPathname(output)
	if err != nil {
		return err
	}

	var idx *barcode.Index
	timedRun(timed, profile, "Building the whitelist index.", 1, func() {
		idx, err = barcode.NewIndex(barcode.ReadWhitelist(whitelistFile))
	})
	if err != nil {
		return err
	}
	log.Printf("Indexed %v whitelist barcodes of length %v.", idx.Size(), idx.Length())

	tally := barcode.NewTally(idx)
	timedRun(timed, profile, "Counting exact barcode matches.", 2, func() {
		var countInput *fastq.InputFile
		if countInput, err = fastq.Open(fullInput); err != nil {
			return
		}
		defer countInput.Close()
		err = barcode.RunCountingPass(countInput, idx, conf, tally)
	})
	if err != nil {
		return err
	}
	log.Printf("Counting pass observed %v exact matches.", tally.Total())
	barcode.WriteCounts(fullOutput, idx, tally)
	return nil
}
