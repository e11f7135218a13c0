package blob

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	data1 := make([]byte, 256)
	for i := range data1 {
		data1[i] = byte(i)
	}
	data2 := make([]byte, 100) // not a multiple of Alignment
	for i := range data2 {
		data2[i] = byte(i * 3)
	}

	offset1, err := w.Add(DataTypeFloat32, data1)
	if err != nil {
		t.Fatalf("Add(1) error = %v", err)
	}
	offset2, err := w.Add(DataTypeInt32, data2)
	if err != nil {
		t.Fatalf("Add(2) error = %v", err)
	}
	if w.EntryCount() != 2 {
		t.Errorf("EntryCount() = %d, want 2", w.EntryCount())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if offset1 == offset2 {
		t.Errorf("metadata offsets collide: %d", offset1)
	}
	if offset1%Alignment != 0 || offset2%Alignment != 0 {
		t.Errorf("offsets not aligned: %d, %d", offset1, offset2)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()

	if r.EntryCount() != 2 {
		t.Errorf("reader EntryCount() = %d, want 2", r.EntryCount())
	}

	got1, dtype1, err := r.ReadAt(offset1)
	if err != nil {
		t.Fatalf("ReadAt(offset1) error = %v", err)
	}
	if dtype1 != DataTypeFloat32 {
		t.Errorf("entry 1 dtype = %d, want %d", dtype1, DataTypeFloat32)
	}
	if !bytes.Equal(got1, data1) {
		t.Error("entry 1 data mismatch")
	}

	got2, dtype2, err := r.ReadAt(offset2)
	if err != nil {
		t.Fatalf("ReadAt(offset2) error = %v", err)
	}
	if dtype2 != DataTypeInt32 {
		t.Errorf("entry 2 dtype = %d, want %d", dtype2, DataTypeInt32)
	}
	if !bytes.Equal(got2, data2) {
		t.Error("entry 2 data mismatch")
	}

	all, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(all) != 2 || !bytes.Equal(all[0], data1) || !bytes.Equal(all[1], data2) {
		t.Error("ReadAll() mismatch")
	}
}

func TestWriterHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := w.Add(DataTypeFloat16, make([]byte, 32)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(raw) < Alignment {
		t.Fatalf("file too small: %d bytes", len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[0:4]); got != MetadataSentinel {
		t.Errorf("header sentinel = %#x, want %#x", got, MetadataSentinel)
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != FormatVersion {
		t.Errorf("header version = %d, want %d", got, FormatVersion)
	}
	if got := binary.LittleEndian.Uint32(raw[8:12]); got != 1 {
		t.Errorf("header count = %d, want 1", got)
	}
}

func TestWriterEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()
	if r.EntryCount() != 0 {
		t.Errorf("EntryCount() = %d, want 0", r.EntryCount())
	}
}

func TestOpenReaderBadSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")
	if err := os.WriteFile(path, make([]byte, Alignment), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Fatal("expected an error for a zeroed header")
	}
}

func TestReadAtCorruptSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	offset, err := w.Add(DataTypeFloat32, make([]byte, 64))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Overwrite the recorded entry size with a value far past the end
	// of the file.
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	huge := make([]byte, 8)
	binary.LittleEndian.PutUint64(huge, 1<<40)
	if _, err := f.WriteAt(huge, int64(offset)+8); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()
	if _, _, err := r.ReadAt(offset); err == nil {
		t.Fatal("expected an error for a size past the end of the file")
	}
}

func TestAlignTo(t *testing.T) {
	tests := []struct {
		offset    uint64
		alignment uint64
		want      uint64
	}{
		{0, 64, 0},
		{1, 64, 64},
		{63, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
		{128, 64, 128},
		{100, 0, 100},
	}
	for _, tt := range tests {
		if got := alignTo(tt.offset, tt.alignment); got != tt.want {
			t.Errorf("alignTo(%d, %d) = %d, want %d", tt.offset, tt.alignment, got, tt.want)
		}
	}
}
