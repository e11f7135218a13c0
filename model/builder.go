// Package model provides a fluent API for constructing and serializing
// edge accelerator model artifacts.
//
// A program is a flat graph of named values and operations. Programs are
// saved as .edgepkg directories (manifest, wire-encoded graph, weight
// blob) which an accelerator compiles into its native executable form.
//
// Example usage:
//
//	b := model.NewBuilder("main")
//	x := b.Input("x", model.Float32, 2, 3)
//	y := b.Relu(x)
//	b.Output("y", y)
//	program, err := b.Build()
package model

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Value represents a named value in the program graph.
// It can be an input, an operation output, or a constant.
type Value struct {
	name    string
	dtype   DType
	shape   []int64
	builder *Builder
	isConst bool
}

// Name returns the value's name.
func (v *Value) Name() string { return v.name }

// Shape returns the value's shape.
func (v *Value) Shape() []int64 { return v.shape }

// DType returns the value's data type.
func (v *Value) DType() DType { return v.dtype }

// IsConst returns true if this value is a constant.
func (v *Value) IsConst() bool { return v.isConst }

// Builder constructs programs.
type Builder struct {
	name      string
	inputs    []*Value
	outputs   []string
	constants []*Constant
	ops       []*Operation
	values    map[string]*Value
	nextID    int
	err       error // first error encountered during building
}

// NewBuilder creates a new program builder. The name is used as the
// function name in the artifact manifest.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		values: make(map[string]*Value),
	}
}

// Err returns the first error encountered during building, if any.
// Callers should check this after constructing a graph to ensure all
// operations were valid.
func (b *Builder) Err() error { return b.err }

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// genName generates a unique name for intermediate values.
func (b *Builder) genName(prefix string) string {
	name := fmt.Sprintf("%s_%d", prefix, b.nextID)
	b.nextID++
	return name
}

// Input adds an input to the program. Shape entries may be DynamicDim.
func (b *Builder) Input(name string, dtype DType, shape ...int64) *Value {
	v := &Value{name: name, dtype: dtype, shape: shape, builder: b}
	b.inputs = append(b.inputs, v)
	b.values[name] = v
	return v
}

// Output marks a value as an output of the program. The output is named
// with the given name, which can differ from the value's internal name.
func (b *Builder) Output(name string, v *Value) {
	if name == v.name {
		b.outputs = append(b.outputs, name)
		return
	}
	renamed := b.Identity(name, v)
	b.outputs = append(b.outputs, renamed.name)
}

// Const creates a constant tensor value. Data must be a slice matching
// dtype: []float32, []float64, []int32, []int64, []bool.
func (b *Builder) Const(name string, dtype DType, shape []int64, data any) *Value {
	raw, err := encodeConstData(dtype, data)
	if err != nil {
		b.setErr(errors.Wrapf(err, "const %q", name))
	}
	n := NumElements(shape)
	if err == nil && int64(len(raw)) != n*int64(dtype.Size()) {
		b.setErr(errors.Errorf("const %q: %d bytes for %d elements of %s", name, len(raw), n, dtype))
	}
	b.constants = append(b.constants, &Constant{
		Name:  name,
		DType: dtype,
		Shape: shape,
		Data:  raw,
	})
	v := &Value{name: name, dtype: dtype, shape: shape, builder: b, isConst: true}
	b.values[name] = v
	return v
}

// encodeConstData converts a typed Go slice into raw little-endian bytes.
func encodeConstData(dtype DType, data any) ([]byte, error) {
	switch d := data.(type) {
	case []float32:
		if dtype == Float16 {
			raw := make([]byte, 2*len(d))
			for i, v := range d {
				binary.LittleEndian.PutUint16(raw[2*i:], float16.Fromfloat32(v).Bits())
			}
			return raw, nil
		}
		if dtype != Float32 {
			return nil, errors.Errorf("[]float32 data for dtype %s", dtype)
		}
		raw := make([]byte, 4*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
		return raw, nil
	case []float64:
		if dtype != Float64 {
			return nil, errors.Errorf("[]float64 data for dtype %s", dtype)
		}
		raw := make([]byte, 8*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
		}
		return raw, nil
	case []int32:
		if dtype != Int32 {
			return nil, errors.Errorf("[]int32 data for dtype %s", dtype)
		}
		raw := make([]byte, 4*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint32(raw[4*i:], uint32(v))
		}
		return raw, nil
	case []int64:
		if dtype != Int64 {
			return nil, errors.Errorf("[]int64 data for dtype %s", dtype)
		}
		raw := make([]byte, 8*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint64(raw[8*i:], uint64(v))
		}
		return raw, nil
	case []bool:
		if dtype != Bool {
			return nil, errors.Errorf("[]bool data for dtype %s", dtype)
		}
		raw := make([]byte, len(d))
		for i, v := range d {
			if v {
				raw[i] = 1
			}
		}
		return raw, nil
	default:
		return nil, errors.Errorf("unsupported const data type %T", data)
	}
}

// addOp appends an operation and returns its output value.
func (b *Builder) addOp(opType string, inputs map[string]*Value, attrs map[string]Attr, outputName string, outputDtype DType, outputShape []int64) *Value {
	opInputs := make(map[string]string, len(inputs))
	for arg, v := range inputs {
		opInputs[arg] = v.name
	}
	b.ops = append(b.ops, &Operation{
		Type:   opType,
		Inputs: opInputs,
		Attrs:  attrs,
		Output: FeatureSpec{Name: outputName, DType: outputDtype, Shape: outputShape},
	})
	v := &Value{name: outputName, dtype: outputDtype, shape: outputShape, builder: b}
	b.values[outputName] = v
	return v
}

// InputSpecs returns the input feature specifications.
func (b *Builder) InputSpecs() []FeatureSpec {
	specs := make([]FeatureSpec, len(b.inputs))
	for i, v := range b.inputs {
		specs[i] = FeatureSpec{Name: v.name, DType: v.dtype, Shape: v.shape}
	}
	return specs
}

// OutputSpecs returns the output feature specifications.
func (b *Builder) OutputSpecs() []FeatureSpec {
	specs := make([]FeatureSpec, len(b.outputs))
	for i, name := range b.outputs {
		v := b.values[name]
		specs[i] = FeatureSpec{Name: name, DType: v.dtype, Shape: v.shape}
	}
	return specs
}

// Build constructs the final Program.
func (b *Builder) Build() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.outputs) == 0 {
		return nil, errors.New("program has no outputs")
	}
	return &Program{
		Name:      b.name,
		Inputs:    b.InputSpecs(),
		Outputs:   b.OutputSpecs(),
		Constants: b.constants,
		Ops:       b.ops,
	}, nil
}
