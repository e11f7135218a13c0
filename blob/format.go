// Package blob implements the aligned weight container used by .edgepkg
// artifacts to store large tensor data outside the wire-encoded graph.
//
// Weights live in a binary file (weights.bin) laid out so every section
// can be memory-mapped directly:
//
//	[storage header (64B)]
//	[entry metadata 0 (64B)] [data 0 (64B aligned)]
//	[entry metadata 1 (64B)] [data 1 (64B aligned)]
//	...
//
// Offsets recorded in the graph are metadata offsets; the metadata entry
// carries the absolute offset of its data section.
package blob

const (
	// Alignment is the byte alignment for all sections in the weight file.
	Alignment = 64

	// MetadataSentinel validates entry metadata records.
	MetadataSentinel uint32 = 0xED6E0001

	// FormatVersion is the current weight file format version.
	FormatVersion uint32 = 1
)

// DataType identifies the element type of a stored entry.
type DataType uint32

const (
	DataTypeFloat16 DataType = 1
	DataTypeFloat32 DataType = 2
	DataTypeInt32   DataType = 3
	DataTypeInt64   DataType = 4
	DataTypeFloat64 DataType = 5
	DataTypeUInt8   DataType = 6
)

// StorageHeader is the 64-byte file header.
type StorageHeader struct {
	Sentinel uint32   // MetadataSentinel
	Version  uint32   // FormatVersion
	Count    uint32   // Number of entries in the file
	Reserved [52]byte // Must be zero
}

// EntryMetadata is the 64-byte record preceding each data section.
type EntryMetadata struct {
	Sentinel    uint32   // MetadataSentinel
	DType       uint32   // DataType enum
	SizeInBytes uint64   // Size of the data section
	Offset      uint64   // Absolute file offset of the data section
	Reserved    [40]byte // Must be zero
}

// alignTo returns the smallest multiple of alignment >= offset.
func alignTo(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	remainder := offset % alignment
	if remainder == 0 {
		return offset
	}
	return offset + (alignment - remainder)
}
