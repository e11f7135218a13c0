package blob

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Reader reads weight entries from a weights.bin file.
type Reader struct {
	file  *os.File
	size  int64
	count int
}

// OpenReader opens a weight file and validates its header.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open weight file")
	}

	var header StorageHeader
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "read header")
	}
	if header.Sentinel != MetadataSentinel {
		f.Close()
		return nil, errors.Errorf("bad weight file sentinel %#x", header.Sentinel)
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, errors.Errorf("unsupported weight file version %d", header.Version)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat weight file")
	}

	return &Reader{file: f, size: info.Size(), count: int(header.Count)}, nil
}

// EntryCount returns the number of entries recorded in the header.
func (r *Reader) EntryCount() int {
	return r.count
}

// ReadAt returns the data and type of the entry whose metadata lives at
// the given offset (the offset recorded in the graph).
func (r *Reader) ReadAt(metadataOffset uint64) ([]byte, DataType, error) {
	if _, err := r.file.Seek(int64(metadataOffset), io.SeekStart); err != nil {
		return nil, 0, errors.Wrapf(err, "seek metadata at %d", metadataOffset)
	}

	var metadata EntryMetadata
	if err := binary.Read(r.file, binary.LittleEndian, &metadata); err != nil {
		return nil, 0, errors.Wrapf(err, "read metadata at %d", metadataOffset)
	}
	if metadata.Sentinel != MetadataSentinel {
		return nil, 0, errors.Errorf("bad entry sentinel %#x at offset %d", metadata.Sentinel, metadataOffset)
	}

	// Bound the recorded extent against the file before trusting it
	// with an allocation.
	end := metadata.Offset + metadata.SizeInBytes
	if end < metadata.Offset || end > uint64(r.size) {
		return nil, 0, errors.Errorf("entry at offset %d claims %d bytes at %d beyond file size %d",
			metadataOffset, metadata.SizeInBytes, metadata.Offset, r.size)
	}

	data := make([]byte, metadata.SizeInBytes)
	if _, err := r.file.ReadAt(data, int64(metadata.Offset)); err != nil {
		return nil, 0, errors.Wrapf(err, "read %d bytes at %d", metadata.SizeInBytes, metadata.Offset)
	}
	return data, DataType(metadata.DType), nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll decodes every entry in file order. Mostly useful for
// inspection tooling.
func (r *Reader) ReadAll() ([][]byte, error) {
	// Entries are laid out sequentially after the header; walk them by
	// re-reading metadata records.
	offset := uint64(Alignment)
	out := make([][]byte, 0, r.count)
	for i := 0; i < r.count; i++ {
		data, _, err := r.ReadAt(offset)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
		dataOffset := alignTo(offset+Alignment, Alignment)
		offset = alignTo(dataOffset+uint64(len(data)), Alignment)
	}
	return out, nil
}
