package blob

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Writer writes weight entries to a weights.bin file.
//
// Usage:
//
//	w, err := blob.NewWriter("weights/weights.bin")
//	if err != nil { ... }
//	defer w.Close()
//
//	offset, err := w.Add(blob.DataTypeFloat32, raw)
//	// Record offset in the graph's constant entry.
type Writer struct {
	file    *os.File
	offset  uint64 // current write position
	entries []writerEntry
}

type writerEntry struct {
	metadataOffset uint64
	dataOffset     uint64
	dtype          DataType
	data           []byte
}

// NewWriter creates a weight writer targeting path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create weight file")
	}
	return &Writer{
		file:   f,
		offset: Alignment, // start after the header
	}, nil
}

// Add appends an entry and returns its metadata offset. The offset is
// what the graph references; the data offset is recorded in the metadata
// written during Close.
func (w *Writer) Add(dtype DataType, data []byte) (uint64, error) {
	metadataOffset := w.offset
	dataOffset := alignTo(metadataOffset+Alignment, Alignment)

	w.entries = append(w.entries, writerEntry{
		metadataOffset: metadataOffset,
		dataOffset:     dataOffset,
		dtype:          dtype,
		data:           data,
	})

	w.offset = alignTo(dataOffset+uint64(len(data)), Alignment)
	return metadataOffset, nil
}

// EntryCount returns the number of entries added.
func (w *Writer) EntryCount() int {
	return len(w.entries)
}

// Close finalizes the file by writing the header and all entries.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	header := StorageHeader{
		Sentinel: MetadataSentinel,
		Version:  FormatVersion,
		Count:    uint32(len(w.entries)),
	}
	if err := w.writeStructAt(0, &header); err != nil {
		w.file.Close()
		return errors.Wrap(err, "write header")
	}

	for _, entry := range w.entries {
		metadata := EntryMetadata{
			Sentinel:    MetadataSentinel,
			DType:       uint32(entry.dtype),
			SizeInBytes: uint64(len(entry.data)),
			Offset:      entry.dataOffset,
		}
		if err := w.writeStructAt(int64(entry.metadataOffset), &metadata); err != nil {
			w.file.Close()
			return errors.Wrapf(err, "write metadata at offset %d", entry.metadataOffset)
		}
		if _, err := w.file.WriteAt(entry.data, int64(entry.dataOffset)); err != nil {
			w.file.Close()
			return errors.Wrapf(err, "write data at offset %d", entry.dataOffset)
		}
	}

	return w.file.Close()
}

// writeStructAt writes a fixed-size struct at the given offset using
// little-endian encoding.
func (w *Writer) writeStructAt(offset int64, data any) error {
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(w.file, binary.LittleEndian, data)
}
