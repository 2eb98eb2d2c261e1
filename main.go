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

// snbc locates and corrects cell barcodes in single-nucleus ATAC-seq
// reads against a barcode whitelist.
//
// Please see https://github.com/porchard/snatac-barcode-processor for a
// documentation of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/porchard/snatac-barcode-processor/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: correct, count")
	fmt.Fprint(os.Stderr, "\n", cmd.CorrectHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.CountHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "correct":
		err = cmd.Correct()
	case "count":
		err = cmd.Count()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command: ", os.Args[1])
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}

}
