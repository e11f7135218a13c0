package marshal

import (
	"encoding/binary"

	"github.com/pkg/errors"

	edgeml "github.com/gomlx/go-edgeml"
	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/model"
)

// Output declares one expected prediction output: its name, the host
// element type the caller wants, and the statically inferred shape
// (possibly with dynamic dimensions).
type Output struct {
	Name  string
	DType model.DType
	Shape []int64
}

// AllocFunc is the host allocation callback: it returns a caller-owned
// buffer sized for the given element type and reconciled shape. It is
// invoked exactly once per output per prediction call.
type AllocFunc func(name string, dtype model.DType, shape []int64) ([]byte, error)

// ExtractOutput locates the named native tensor in the prediction
// results, reconciles its concrete shape against the inferred one,
// obtains a destination buffer from the host, and copies the native
// elements into it, densifying any strided layout.
func ExtractOutput(results *accel.Results, out Output, alloc AllocFunc) error {
	t := results.Get(out.Name)
	if t == nil {
		return errors.Wrapf(edgeml.ErrMissingOutput, "%q", out.Name)
	}

	shape, err := Reconcile(out.Shape, t.Shape())
	if err != nil {
		return errors.Wrapf(err, "output %q", out.Name)
	}

	count := int64(1)
	for _, dim := range shape {
		count *= dim
	}

	dst, err := alloc(out.Name, out.DType, shape)
	if err != nil {
		return errors.Wrapf(err, "allocate output %q", out.Name)
	}

	if n := t.NumElements(); n != count {
		return errors.Wrapf(edgeml.ErrElementCountMismatch,
			"output %q: native count %d, reconciled shape %v has %d", out.Name, n, shape, count)
	}
	if int64(len(dst)) < count*int64(out.DType.Size()) {
		return errors.Wrapf(edgeml.ErrElementCountMismatch,
			"output %q: destination holds %d bytes, need %d", out.Name, len(dst), count*int64(out.DType.Size()))
	}

	layout, err := DiscoverLayout(t.Shape(), t.Strides())
	if err != nil {
		return errors.Wrapf(err, "output %q", out.Name)
	}
	return copyBlocks(dst, t, out.DType, layout)
}

// copyBlocks copies layout.NumBlocks contiguous chunks from the native
// tensor into the dense destination buffer. Float and 32-bit integer
// elements copy verbatim (float16 bit-for-bit); a 64-bit integer host
// paired with a 32-bit native tensor widens per element.
func copyBlocks(dst []byte, t *accel.Tensor, hostDType model.DType, layout StridedLayout) error {
	src := t.Data()

	var elemSize int64
	switch {
	case hostDType == model.Float32 && t.DType() == accel.Float32,
		hostDType == model.Int32 && t.DType() == accel.Int32:
		elemSize = 4
	case hostDType == model.Float16 && t.DType() == accel.Float16:
		elemSize = 2
	case hostDType == model.Int64 && t.DType() == accel.Int32:
		// Widening copy, handled below.
		for b := int64(0); b < layout.NumBlocks; b++ {
			srcOff := b * layout.Stride
			dstOff := b * layout.BlockSize
			for i := int64(0); i < layout.BlockSize; i++ {
				v := int32(binary.LittleEndian.Uint32(src[(srcOff+i)*4:]))
				binary.LittleEndian.PutUint64(dst[(dstOff+i)*8:], uint64(int64(v)))
			}
		}
		return nil
	default:
		return errors.Wrapf(edgeml.ErrUnsupportedDataType,
			"native %s into host %s", t.DType(), hostDType)
	}

	for b := int64(0); b < layout.NumBlocks; b++ {
		srcOff := b * layout.Stride * elemSize
		dstOff := b * layout.BlockSize * elemSize
		copy(dst[dstOff:dstOff+layout.BlockSize*elemSize], src[srcOff:srcOff+layout.BlockSize*elemSize])
	}
	return nil
}
