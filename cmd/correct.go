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

// CorrectHelp is the help string for the snbc correct command.
const CorrectHelp = "correct parameters:\n" +
	"snbc correct input.fastq[.gz] output.fastq[.gz]\n" +
	"--whitelist file\n" +
	"[--counts file]\n" +
	"[--uniform-priors]\n" +
	"[--expected-offset n]\n" +
	"[--max-offset n]\n" +
	"[--confidence-threshold probability]\n" +
	"[--ambiguity-margin fraction]\n" +
	"[--error-floor probability]\n" +
	"[--error-ceiling probability]\n" +
	"[--any-base-likelihood probability]\n" +
	"[--prior-floor probability]\n" +
	"[--tie-break forward | reverse-complement]\n" +
	"[--cache-size n]\n" +
	"[--counts-out file]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile prefix]\n" +
	"[--log-path path]\n"

// Correct implements the snbc correct command.
func Correct() error {
	var (
		whitelistFile, countsFile, countsOut string
		uniformPriors                        bool
		expectedOffset, maxOffset            int
		confidenceThreshold, ambiguityMargin float64
		errorFloor, errorCeiling             float64
		anyBaseLikelihood, priorFloor        float64
		tieBreak                             string
		cacheSize                            int
		nrOfThreads                          int
		timed                                bool
		profile, logPath                     string
	)

	var flags flag.FlagSet

	flags.StringVar(&whitelistFile, "whitelist", "", "whitelist of valid barcodes, one per line")
	flags.StringVar(&countsFile, "counts", "", "precomputed barcode counts to use as priors")
	flags.BoolVar(&uniformPriors, "uniform-priors", false, "use uniform priors instead of a counting pass")
	flags.IntVar(&expectedOffset, "expected-offset", -1, "hint for the barcode start position in a read")
	flags.IntVar(&maxOffset, "max-offset", -1, "restrict candidate barcode offsets to 0..n")
	flags.Float64Var(&confidenceThreshold, "confidence-threshold", barcode.DefaultConfidenceThreshold, "minimum posterior probability for accepting a correction")
	flags.Float64Var(&ambiguityMargin, "ambiguity-margin", barcode.DefaultAmbiguityMargin, "minimum relative gap between the top two candidates")
	flags.Float64Var(&errorFloor, "error-floor", barcode.DefaultErrorFloor, "minimum per-base error probability")
	flags.Float64Var(&errorCeiling, "error-ceiling", barcode.DefaultErrorCeiling, "maximum per-base error probability")
	flags.Float64Var(&anyBaseLikelihood, "any-base-likelihood", barcode.DefaultAnyBaseLikelihood, "likelihood factor for N positions")
	flags.Float64Var(&priorFloor, "prior-floor", barcode.DefaultPriorFloor, "minimum prior for unobserved whitelist barcodes")
	flags.StringVar(&tieBreak, "tie-break", "forward", "orientation preferred on equally strong matches")
	flags.IntVar(&cacheSize, "cache-size", 1000000, "number of correction decisions to memoize (0 disables)")
	flags.StringVar(&countsOut, "counts-out", "", "also write the counting pass result to this file")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, CorrectHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], CorrectHelp)
	output := getFilename(os.Args[3], CorrectHelp)

	parseFlags(&flags, 4, CorrectHelp)

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
	if countsFile != "" && !checkExist("--counts", countsFile) {
		sanityChecksFailed = true
	}
	if countsOut != "" && !checkCreate("--counts-out", countsOut) {
		sanityChecksFailed = true
	}
	if countsFile != "" && uniformPriors {
		log.Println("Error: Cannot combine --counts with --uniform-priors.")
		sanityChecksFailed = true
	}
	if countsFile != "" && countsOut != "" {
		log.Println("Error: Cannot combine --counts with --counts-out: no counting pass is run when counts are given.")
		sanityChecksFailed = true
	}
	if uniformPriors && countsOut != "" {
		log.Println("Error: Cannot combine --uniform-priors with --counts-out: no counting pass is run with uniform priors.")
		sanityChecksFailed = true
	}
	if !checkProbability("--confidence-threshold", confidenceThreshold) {
		sanityChecksFailed = true
	}
	if ambiguityMargin < 0 || ambiguityMargin >= 1 {
		log.Println("Error: Invalid ambiguity margin: ", ambiguityMargin)
		sanityChecksFailed = true
	}
	if !checkProbability("--error-floor", errorFloor) ||
		!checkProbability("--error-ceiling", errorCeiling) ||
		!checkProbability("--any-base-likelihood", anyBaseLikelihood) ||
		!checkProbability("--prior-floor", priorFloor) {
		sanityChecksFailed = true
	}
	if errorFloor > errorCeiling {
		log.Println("Error: error floor exceeds error ceiling.")
		sanityChecksFailed = true
	}
	conf := barcode.DefaultConfig()
	conf.ExpectedOffset = expectedOffset
	conf.ConfidenceThreshold = confidenceThreshold
	conf.AmbiguityMargin = ambiguityMargin
	conf.ErrorFloor = errorFloor
	conf.ErrorCeiling = errorCeiling
	conf.AnyBaseLikelihood = anyBaseLikelihood
	conf.PriorFloor = priorFloor
	if maxOffset >= 0 {
		conf.AllowedOffsets = offsetMask(maxOffset)
	}
	switch tieBreak {
	case "forward":
		conf.TieBreak = barcode.Forward
	case "reverse-complement":
		conf.TieBreak = barcode.ReverseComplement
	default:
		log.Printf("Error: Invalid tie-break %v.\n", tieBreak)
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}
	if cacheSize < 0 {
		log.Println("Error: Invalid cache-size: ", cacheSize)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CorrectHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " correct ", input, " ", output)
	fmt.Fprint(&command, " --whitelist ", whitelistFile)
	if countsFile != "" {
		fmt.Fprint(&command, " --counts ", countsFile)
	}
	if uniformPriors {
		fmt.Fprint(&command, " --uniform-priors")
	}
	if expectedOffset >= 0 {
		fmt.Fprint(&command, " --expected-offset ", expectedOffset)
	}
	if maxOffset >= 0 {
		fmt.Fprint(&command, " --max-offset ", maxOffset)
	}
	fmt.Fprint(&command, " --confidence-threshold ", confidenceThreshold)
	fmt.Fprint(&command, " --ambiguity-margin ", ambiguityMargin)
	fmt.Fprint(&command, " --error-floor ", errorFloor)
	fmt.Fprint(&command, " --error-ceiling ", errorCeiling)
	fmt.Fprint(&command, " --any-base-likelihood ", anyBaseLikelihood)
	fmt.Fprint(&command, " --prior-floor ", priorFloor)
	fmt.Fprint(&command, " --tie-break ", tieBreak)
	fmt.Fprint(&command, " --cache-size ", cacheSize)
	if countsOut != "" {
		fmt.Fprint(&command, " --counts-out ", countsOut)
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

	var priors *barcode.PriorTable
	switch {
	case countsFile != "":
		tally, skipped := barcode.ReadCounts(countsFile, idx)
		if skipped > 0 {
			log.Printf("Ignored %v non-whitelist barcodes in %v.", skipped, countsFile)
		}
		priors = tally.Finalize(conf.PriorFloor)
	case uniformPriors:
		priors = barcode.UniformPriors(idx.Size())
	default:
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
		if countsOut != "" {
			barcode.WriteCounts(countsOut, idx, tally)
		}
		priors = tally.Finalize(conf.PriorFloor)
	}

	processor := barcode.NewProcessor(idx, priors, conf, barcode.NewDecisionCache(cacheSize))
	timedRun(timed, profile, "Correcting barcodes.", 3, func() {
		var correctInput *fastq.InputFile
		if correctInput, err = fastq.Open(fullInput); err != nil {
			return
		}
		defer correctInput.Close()
		var correctOutput *fastq.OutputFile
		if correctOutput, err = fastq.Create(fullOutput); err != nil {
			return
		}
		if err = processor.RunCorrectionPass(correctInput, correctOutput); err != nil {
			_ = correctOutput.Close()
			return
		}
		err = correctOutput.Close()
	})
	if err != nil {
		return err
	}
	processor.LogStats()
	return nil
}
