package accel

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Tensor is a native accelerator tensor: an element type, a shape, the
// per-axis element strides of its backing storage, and the raw bytes.
//
// Input tensors built by the marshaller alias host memory (zero copy);
// output tensors are owned by the model that produced them.
type Tensor struct {
	shape   []int64
	strides []int64
	dtype   DType
	data    []byte
}

// NewTensor allocates a contiguous zero-filled tensor.
func NewTensor(shape []int64, dtype DType) (*Tensor, error) {
	n := numElements(shape)
	if n < 0 {
		return nil, errors.Errorf("shape %v has a dynamic dimension", shape)
	}
	return &Tensor{
		shape:   append([]int64(nil), shape...),
		strides: ContiguousStrides(shape),
		dtype:   dtype,
		data:    make([]byte, n*int64(dtype.Size())),
	}, nil
}

// NewTensorWithData wraps data without copying. A nil strides means
// contiguous row-major. The data must stay alive and unchanged for the
// tensor's lifetime.
func NewTensorWithData(shape, strides []int64, dtype DType, data []byte) (*Tensor, error) {
	if strides == nil {
		strides = ContiguousStrides(shape)
		n := numElements(shape)
		if n < 0 {
			return nil, errors.Errorf("shape %v has a dynamic dimension", shape)
		}
		if int64(len(data)) < n*int64(dtype.Size()) {
			return nil, errors.Errorf("data too short: %d bytes for %d %s elements", len(data), n, dtype)
		}
	}
	if len(strides) != len(shape) {
		return nil, errors.Errorf("strides rank %d != shape rank %d", len(strides), len(shape))
	}
	return &Tensor{
		shape:   append([]int64(nil), shape...),
		strides: append([]int64(nil), strides...),
		dtype:   dtype,
		data:    data,
	}, nil
}

// ContiguousStrides returns row-major element strides for shape.
func ContiguousStrides(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	stride := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the size of the given dimension.
func (t *Tensor) Dim(axis int) int64 { return t.shape[axis] }

// Shape returns the tensor's shape. The slice must not be mutated.
func (t *Tensor) Shape() []int64 { return t.shape }

// Strides returns the per-axis element strides of the backing storage.
func (t *Tensor) Strides() []int64 { return t.strides }

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// NumElements returns the number of logical elements.
func (t *Tensor) NumElements() int64 {
	return numElements(t.shape)
}

// Data returns the raw backing bytes, including any stride padding.
func (t *Tensor) Data() []byte { return t.data }

// Float32At reads the float32 element at a flat storage index.
func (t *Tensor) Float32At(i int64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:]))
}

// SetFloat32At writes the float32 element at a flat storage index.
func (t *Tensor) SetFloat32At(i int64, v float32) {
	binary.LittleEndian.PutUint32(t.data[i*4:], math.Float32bits(v))
}

// Int32At reads the int32 element at a flat storage index.
func (t *Tensor) Int32At(i int64) int32 {
	return int32(binary.LittleEndian.Uint32(t.data[i*4:]))
}

// SetInt32At writes the int32 element at a flat storage index.
func (t *Tensor) SetInt32At(i int64, v int32) {
	binary.LittleEndian.PutUint32(t.data[i*4:], uint32(v))
}

// Uint16At reads the raw 16-bit element at a flat storage index.
func (t *Tensor) Uint16At(i int64) uint16 {
	return binary.LittleEndian.Uint16(t.data[i*2:])
}

// SetUint16At writes the raw 16-bit element at a flat storage index.
func (t *Tensor) SetUint16At(i int64, v uint16) {
	binary.LittleEndian.PutUint16(t.data[i*2:], v)
}

func numElements(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		if dim < 0 {
			return -1
		}
		n *= dim
	}
	return n
}

// Features is the bound collection of named input tensors for one
// prediction call.
type Features struct {
	names   []string
	tensors map[string]*Tensor
}

// NewFeatures returns an empty feature set.
func NewFeatures() *Features {
	return &Features{tensors: make(map[string]*Tensor)}
}

// Bind adds a named input tensor. Binding a duplicate name fails.
func (f *Features) Bind(name string, t *Tensor) error {
	if _, ok := f.tensors[name]; ok {
		return errors.Errorf("input %q bound twice", name)
	}
	f.names = append(f.names, name)
	f.tensors[name] = t
	return nil
}

// Names returns the bound input names in binding order.
func (f *Features) Names() []string { return f.names }

// Get returns the tensor bound to name, or nil.
func (f *Features) Get(name string) *Tensor { return f.tensors[name] }

// Len returns the number of bound inputs.
func (f *Features) Len() int { return len(f.names) }

// Results is the named output tensor collection of one prediction call.
type Results struct {
	tensors map[string]*Tensor
}

// NewResults returns an empty result set.
func NewResults() *Results {
	return &Results{tensors: make(map[string]*Tensor)}
}

// Set records an output tensor.
func (r *Results) Set(name string, t *Tensor) {
	r.tensors[name] = t
}

// Get returns the named output tensor, or nil when absent.
func (r *Results) Get(name string) *Tensor {
	return r.tensors[name]
}
