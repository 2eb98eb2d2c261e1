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

// Package fastq reads and writes FASTQ files, plain or gzip-compressed,
// in a form that plugs into pargo pipelines.
package fastq

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/pgzip"

	"github.com/porchard/snatac-barcode-processor/internal"
)

// A Record is a single FASTQ read. Name is the first whitespace-limited
// token of the header line without the leading @; Desc is the remainder
// of the header line, if any.
type Record struct {
	Name []byte
	Desc []byte
	Seq  []byte
	Qual []byte
}

// SetBarcodeTags rewrites the record description with the barcode tags
// of the output contract: CR carries the raw extracted barcode, CB the
// corrected barcode (omitted when nil), and CY the barcode quality.
func (r *Record) SetBarcodeTags(raw, corrected, qual []byte) {
	var desc bytes.Buffer
	fmt.Fprintf(&desc, "CR:Z:%s", raw)
	if corrected != nil {
		fmt.Fprintf(&desc, "\tCB:Z:%s", corrected)
	}
	fmt.Fprintf(&desc, "\tCY:Z:%s", qual)
	r.Desc = desc.Bytes()
}

// An InputFile represents a FASTQ file for input. It implements the
// pargo pipeline.Source interface, producing batches of *Record.
type InputFile struct {
	file   *os.File
	gz     *pgzip.Reader
	reader *bufio.Reader
	record int64
	data   []*Record
	err    error
}

func isGzipPath(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// Open opens a FASTQ file for reading, decompressing transparently when
// the filename ends in .gz.
func Open(path string) (*InputFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	f := &InputFile{file: file}
	if isGzipPath(path) {
		if f.gz, err = pgzip.NewReader(file); err != nil {
			_ = file.Close()
			return nil, err
		}
		f.reader = bufio.NewReader(f.gz)
	} else {
		f.reader = bufio.NewReader(file)
	}
	return f, nil
}

// Close closes the FASTQ input file.
func (f *InputFile) Close() error {
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			_ = f.file.Close()
			return err
		}
	}
	return f.file.Close()
}

func (f *InputFile) readLine() ([]byte, error) {
	line, err := f.reader.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// ReadRecord reads the next record, or io.EOF at the end of the file.
func (f *InputFile) ReadRecord() (*Record, error) {
	header, err := f.readLine()
	if err != nil {
		return nil, err
	}
	f.record++
	if len(header) == 0 || header[0] != '@' {
		return nil, fmt.Errorf("invalid FASTQ record %v: header line %q does not start with @", f.record, header)
	}
	seq, err := f.readLine()
	if err != nil {
		return nil, f.truncated(err)
	}
	plus, err := f.readLine()
	if err != nil {
		return nil, f.truncated(err)
	}
	if len(plus) == 0 || plus[0] != '+' {
		return nil, fmt.Errorf("invalid FASTQ record %v: separator line %q does not start with +", f.record, plus)
	}
	qual, err := f.readLine()
	if err != nil {
		return nil, f.truncated(err)
	}
	if len(qual) != len(seq) {
		return nil, fmt.Errorf("invalid FASTQ record %v: sequence length %v and quality length %v differ", f.record, len(seq), len(qual))
	}
	record := &Record{Seq: seq, Qual: qual}
	if sep := bytes.IndexByte(header, ' '); sep >= 0 {
		record.Name = header[1:sep]
		record.Desc = header[sep+1:]
	} else {
		record.Name = header[1:]
	}
	return record, nil
}

func (f *InputFile) truncated(err error) error {
	if err == io.EOF {
		return fmt.Errorf("invalid FASTQ record %v: truncated record at end of file", f.record)
	}
	return err
}

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	if f.err != io.EOF {
		return f.err
	}
	return nil
}

// Prepare implements the method of the pipeline.Source interface.
func (f *InputFile) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) int {
	if f.err != nil {
		f.data = nil
		return 0
	}
	batch := make([]*Record, 0, size)
	for len(batch) < size {
		record, err := f.ReadRecord()
		if err != nil {
			f.err = err
			break
		}
		batch = append(batch, record)
	}
	f.data = batch
	return len(batch)
}

// Data implements the method of the pipeline.Source interface.
func (f *InputFile) Data() interface{} {
	return f.data
}

// An OutputFile represents a FASTQ file for output. Records are written
// to a uniquely named temporary file next to the destination, which is
// renamed into place on Close, so that readers never observe a partial
// output.
type OutputFile struct {
	path    string
	tmpPath string
	file    *os.File
	gz      *pgzip.Writer
	writer  *bufio.Writer
}

// Create creates a FASTQ file for writing, compressing transparently
// when the filename ends in .gz.
func Create(path string) (*OutputFile, error) {
	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	f := &OutputFile{path: path, tmpPath: tmpPath, file: file}
	if isGzipPath(path) {
		f.gz = pgzip.NewWriter(file)
		f.writer = bufio.NewWriter(f.gz)
	} else {
		f.writer = bufio.NewWriter(file)
	}
	return f, nil
}

// FormatRecord appends the FASTQ representation of a record to out.
func FormatRecord(record *Record, out []byte) []byte {
	out = append(out, '@')
	out = append(out, record.Name...)
	if len(record.Desc) > 0 {
		out = append(out, ' ')
		out = append(out, record.Desc...)
	}
	out = append(out, '\n')
	out = append(out, record.Seq...)
	out = append(out, "\n+\n"...)
	out = append(out, record.Qual...)
	out = append(out, '\n')
	return out
}

// WriteRecord writes a single record.
func (f *OutputFile) WriteRecord(record *Record) error {
	buf := FormatRecord(record, internal.ReserveByteBuffer())
	_, err := f.writer.Write(buf)
	internal.ReleaseByteBuffer(buf)
	return err
}

// Close flushes and closes the output file and moves it to its final
// name.
func (f *OutputFile) Close() error {
	if err := f.writer.Flush(); err != nil {
		_ = f.file.Close()
		return err
	}
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			_ = f.file.Close()
			return err
		}
	}
	if err := f.file.Close(); err != nil {
		return err
	}
	return os.Rename(f.tmpPath, f.path)
}
