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

package fastq

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatRecord(t *testing.T) {
	record := &Record{
		Name: []byte("read1"),
		Desc: []byte("some description"),
		Seq:  []byte("ACGT"),
		Qual: []byte("IIII"),
	}
	if string(FormatRecord(record, nil)) != "@read1 some description\nACGT\n+\nIIII\n" {
		t.Error("FormatRecord with description failed")
	}
	record.Desc = nil
	if string(FormatRecord(record, nil)) != "@read1\nACGT\n+\nIIII\n" {
		t.Error("FormatRecord without description failed")
	}
}

func TestSetBarcodeTags(t *testing.T) {
	record := &Record{Name: []byte("read1")}
	record.SetBarcodeTags([]byte("AACCGGTA"), []byte("AACCGGTT"), []byte("IIIIIIII"))
	if string(record.Desc) != "CR:Z:AACCGGTA\tCB:Z:AACCGGTT\tCY:Z:IIIIIIII" {
		t.Errorf("SetBarcodeTags corrected failed: got %q", record.Desc)
	}
	record.SetBarcodeTags([]byte("AACCGGTA"), nil, []byte("IIIIIIII"))
	if string(record.Desc) != "CR:Z:AACCGGTA\tCY:Z:IIIIIIII" {
		t.Errorf("SetBarcodeTags uncorrected failed: got %q", record.Desc)
	}
}

func roundTrip(t *testing.T, path string) {
	t.Helper()
	records := []*Record{
		{Name: []byte("read1"), Seq: []byte("ACGTACGT"), Qual: []byte("IIIIIIII")},
		{Name: []byte("read2"), Desc: []byte("CR:Z:ACGT\tCY:Z:IIII"), Seq: []byte("AACC"), Qual: []byte("!#5I")},
		{Name: []byte("read3"), Seq: []byte("NNNN"), Qual: []byte("####")},
	}
	out, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, record := range records {
		if err := out.WriteRecord(record); err != nil {
			t.Fatal(err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	in, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = in.Close() }()
	for i, expected := range records {
		record, err := in.ReadRecord()
		if err != nil {
			t.Fatal(err)
		}
		if string(record.Name) != string(expected.Name) ||
			string(record.Desc) != string(expected.Desc) ||
			string(record.Seq) != string(expected.Seq) ||
			string(record.Qual) != string(expected.Qual) {
			t.Errorf("round trip failed at record %v", i)
		}
	}
	if _, err := in.ReadRecord(); err != io.EOF {
		t.Error("round trip end of file failed")
	}
}

func TestRoundTrip(t *testing.T) {
	roundTrip(t, filepath.Join(t.TempDir(), "reads.fastq"))
}

func TestRoundTripGzip(t *testing.T) {
	roundTrip(t, filepath.Join(t.TempDir(), "reads.fastq.gz"))
}

func TestCreateAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reads.fastq")
	out, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// the destination only appears once the file is closed
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Create atomic rename failed")
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("Create atomic rename close failed")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Error("Create atomic rename cleanup failed")
	}
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reads.fastq")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadRecordErrors(t *testing.T) {
	in, err := Open(writeTestFile(t, "read1\nACGT\n+\nIIII\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.ReadRecord(); err == nil {
		t.Error("ReadRecord bad header failed")
	}
	_ = in.Close()

	in, err = Open(writeTestFile(t, "@read1\nACGT\nIIII\n+\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.ReadRecord(); err == nil {
		t.Error("ReadRecord bad separator failed")
	}
	_ = in.Close()

	in, err = Open(writeTestFile(t, "@read1\nACGT\n+\nIIIII\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.ReadRecord(); err == nil {
		t.Error("ReadRecord quality length failed")
	}
	_ = in.Close()

	in, err = Open(writeTestFile(t, "@read1\nACGT\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.ReadRecord(); err == nil {
		t.Error("ReadRecord truncated record failed")
	}
	_ = in.Close()
}

func TestReadRecordMissingNewline(t *testing.T) {
	in, err := Open(writeTestFile(t, "@read1 desc\nACGT\n+\nIIII"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = in.Close() }()
	record, err := in.ReadRecord()
	if err != nil {
		t.Fatal(err)
	}
	if string(record.Name) != "read1" || string(record.Desc) != "desc" || string(record.Qual) != "IIII" {
		t.Error("ReadRecord missing final newline failed")
	}
}
