package marshal

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	edgeml "github.com/gomlx/go-edgeml"
	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/model"
)

// Input is one named host tensor handed to a prediction call. Data holds
// raw little-endian elements; the host retains ownership.
type Input struct {
	Name  string
	DType model.DType
	Shape []int64
	Data  []byte
}

// BuildFeatures binds host inputs into an accelerator feature set.
//
// Native tensor views alias the host buffers directly; the only copy is
// the narrowing path, where 64-bit integer inputs are rewritten into
// 32-bit buffers for accelerators without int64 support. The bound
// tensors own those buffers for the life of the feature set.
func BuildFeatures(inputs []Input, caps accel.Capabilities) (*accel.Features, error) {
	features := accel.NewFeatures()

	for _, in := range inputs {
		nativeShape := in.Shape
		if len(nativeShape) == 0 {
			// Accelerators represent scalars as single-element rank-1
			// arrays.
			nativeShape = []int64{1}
		}

		data := in.Data
		dt, err := nativeDType(in.DType, caps)
		if err != nil {
			return nil, errors.Wrapf(err, "input %q", in.Name)
		}
		if in.DType == model.Int64 && dt == accel.Int32 {
			data, err = narrowInt64(in.Data)
			if err != nil {
				return nil, errors.Wrapf(err, "input %q", in.Name)
			}
		}

		t, err := accel.NewTensorWithData(nativeShape, nil, dt, data)
		if err != nil {
			return nil, errors.Wrapf(edgeml.ErrFeatureConstructionFailed,
				"input %q: %v", in.Name, err)
		}
		if err := features.Bind(in.Name, t); err != nil {
			return nil, errors.Wrapf(edgeml.ErrFeatureConstructionFailed,
				"input %q: %v", in.Name, err)
		}
	}
	return features, nil
}

// nativeDType maps a host element type onto the accelerator's supported
// set.
func nativeDType(dt model.DType, caps accel.Capabilities) (accel.DType, error) {
	switch dt {
	case model.Float32:
		if caps.Supports(accel.Float32) {
			return accel.Float32, nil
		}
	case model.Float16:
		if caps.Supports(accel.Float16) {
			return accel.Float16, nil
		}
	case model.Int32:
		if caps.Supports(accel.Int32) {
			return accel.Int32, nil
		}
	case model.Int64:
		if caps.Supports(accel.Int64) {
			return accel.Int64, nil
		}
		if caps.Supports(accel.Int32) {
			return accel.Int32, nil
		}
	case model.Bool:
		if caps.Supports(accel.Bool) {
			return accel.Bool, nil
		}
	}
	return 0, errors.Wrapf(edgeml.ErrUnsupportedDataType, "%s", dt)
}

// narrowInt64 rewrites raw int64 elements into an int32 scratch buffer.
// A value outside int32 range fails loudly rather than truncating.
func narrowInt64(data []byte) ([]byte, error) {
	n := len(data) / 8
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		v := int64(binary.LittleEndian.Uint64(data[i*8:]))
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, errors.Wrapf(edgeml.ErrValueOutOfRange,
				"element %d: %d", i, v)
		}
		binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(v)))
	}
	return out, nil
}
