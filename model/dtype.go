package model

import "fmt"

// DType represents a host-side tensor element type.
//
// The host set is wider than what accelerators support: the runtime's
// marshaller narrows Int64 (and widens back on extraction) when the target
// accelerator only handles 32-bit integers.
type DType int

const (
	InvalidDType DType = iota
	Float32
	Float16
	Int32
	Int64
	Float64
	Bool
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	case Int64, Float64:
		return 8
	case Bool:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// DynamicDim marks a dimension whose size is unknown until runtime.
const DynamicDim int64 = -1

// NumElements returns the product of the dimensions, or -1 if any
// dimension is dynamic. A rank-0 shape has one element.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		if dim == DynamicDim {
			return -1
		}
		n *= dim
	}
	return n
}
