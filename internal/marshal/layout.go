package marshal

import (
	"github.com/pkg/errors"

	edgeml "github.com/gomlx/go-edgeml"
)

// StridedLayout describes a tensor whose backing storage has zero or one
// non-contiguous axis: the copy proceeds in NumBlocks contiguous chunks
// of BlockSize elements, hopping Stride storage elements in the source
// per chunk.
//
// Invariants: Stride >= BlockSize and Stride*NumBlocks covers the
// underlying storage.
type StridedLayout struct {
	BlockSize int64
	NumBlocks int64
	Stride    int64
}

// DiscoverLayout derives the chunked-copy layout from a tensor's shape
// and per-axis element strides. Axes are scanned from innermost to
// outermost: the first axis whose stride does not match the running
// contiguous-element count marks the start of non-contiguous space.
// A second such axis is an unsupported layout.
func DiscoverLayout(shape, strides []int64) (StridedLayout, error) {
	total := int64(1)
	for _, dim := range shape {
		total *= dim
	}

	blockSize := int64(-1)
	stride := int64(-1)
	logical := int64(1) // contiguous elements covered so far
	storage := int64(1) // storage elements covered so far

	for axis := len(shape) - 1; axis >= 0; axis-- {
		if shape[axis] == 1 {
			// Size-1 axes carry no layout information; their strides
			// are never walked.
			continue
		}
		if strides[axis] != storage {
			if blockSize >= 0 {
				return StridedLayout{}, errors.Wrapf(edgeml.ErrUnsupportedLayout,
					"second non-contiguous axis %d (stride %d, expected %d)",
					axis, strides[axis], storage)
			}
			blockSize = logical
			stride = strides[axis]
			storage = strides[axis]
		}
		logical *= shape[axis]
		storage *= shape[axis]
	}

	if blockSize < 0 {
		// Fully contiguous: one block covering everything.
		return StridedLayout{BlockSize: total, NumBlocks: 1, Stride: total}, nil
	}
	return StridedLayout{
		BlockSize: blockSize,
		NumBlocks: total / blockSize,
		Stride:    stride,
	}, nil
}
