package cpu

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/go-edgeml/accel"
	"github.com/gomlx/go-edgeml/model"
)

// nativeDType maps a host-side program element type onto the reference
// accelerator's native set.
func nativeDType(dt model.DType) (accel.DType, error) {
	switch dt {
	case model.Float32:
		return accel.Float32, nil
	case model.Float16:
		return accel.Float16, nil
	case model.Int32:
		return accel.Int32, nil
	case model.Int64:
		return accel.Int32, nil // narrowed at the boundary
	case model.Bool:
		return accel.Bool, nil
	default:
		return 0, errors.Errorf("no native representation for %s", dt)
	}
}

// run interprets the program over the bound features.
func run(p *model.Program, consts map[string]*accel.Tensor, features *accel.Features) (*accel.Results, error) {
	env := make(map[string]*accel.Tensor, len(consts)+features.Len()+len(p.Ops))
	for name, t := range consts {
		env[name] = t
	}

	for _, in := range p.Inputs {
		t := features.Get(in.Name)
		if t == nil {
			return nil, errors.Errorf("missing input %q", in.Name)
		}
		want, err := nativeDType(in.DType)
		if err != nil {
			return nil, errors.Wrapf(err, "input %q", in.Name)
		}
		if t.DType() != want {
			return nil, errors.Errorf("input %q: bound %s, model expects %s", in.Name, t.DType(), want)
		}
		if err := checkInputShape(in, t.Shape()); err != nil {
			return nil, err
		}
		env[in.Name] = t
	}

	for _, op := range p.Ops {
		out, err := evalOp(op, env)
		if err != nil {
			return nil, errors.Wrapf(err, "op %s -> %q", op.Type, op.Output.Name)
		}
		env[op.Output.Name] = out
	}

	results := accel.NewResults()
	for _, out := range p.Outputs {
		t, ok := env[out.Name]
		if !ok {
			return nil, errors.Errorf("program produced no value for output %q", out.Name)
		}
		results.Set(out.Name, t)
	}
	return results, nil
}

// checkInputShape validates a bound tensor against the declared feature
// shape; dynamic dimensions accept any size, and rank-0 declarations
// accept the rank-1 scalar encoding.
func checkInputShape(spec model.FeatureSpec, got []int64) error {
	want := spec.Shape
	if len(want) == 0 {
		if len(got) == 1 && got[0] == 1 {
			return nil
		}
		return errors.Errorf("input %q: scalar expects shape [1], got %v", spec.Name, got)
	}
	if len(want) != len(got) {
		return errors.Errorf("input %q: rank %d, model expects %d", spec.Name, len(got), len(want))
	}
	for i, dim := range want {
		if dim != model.DynamicDim && dim != got[i] {
			return errors.Errorf("input %q: shape %v, model expects %v", spec.Name, got, want)
		}
	}
	return nil
}

func evalOp(op *model.Operation, env map[string]*accel.Tensor) (*accel.Tensor, error) {
	arg := func(name string) (*accel.Tensor, error) {
		value, ok := op.Inputs[name]
		if !ok {
			return nil, errors.Errorf("missing argument %q", name)
		}
		t, ok := env[value]
		if !ok {
			return nil, errors.Errorf("argument %q references unknown value %q", name, value)
		}
		return t, nil
	}

	switch op.Type {
	case "identity":
		return arg("x")
	case "relu":
		x, err := arg("x")
		if err != nil {
			return nil, err
		}
		return unaryOp(x, func(v float64) float64 {
			if v < 0 {
				return 0
			}
			return v
		})
	case "add":
		return binaryArgs(arg, func(a, b float64) float64 { return a + b })
	case "sub":
		return binaryArgs(arg, func(a, b float64) float64 { return a - b })
	case "mul":
		return binaryArgs(arg, func(a, b float64) float64 { return a * b })
	case "matmul":
		x, err := arg("x")
		if err != nil {
			return nil, err
		}
		y, err := arg("y")
		if err != nil {
			return nil, err
		}
		return matmul(x, y)
	case "conv":
		x, err := arg("x")
		if err != nil {
			return nil, err
		}
		w, err := arg("weight")
		if err != nil {
			return nil, err
		}
		strides := []int64{1, 1}
		if a, ok := op.Attrs["strides"]; ok && len(a.Ints) == 2 {
			strides = a.Ints
		}
		return conv2d(x, w, strides)
	default:
		return nil, errors.Errorf("unsupported op type %q", op.Type)
	}
}

// elemAccessors returns load/store functions for arithmetic over a
// tensor's flat storage, abstracting the element type.
func elemAccessors(t *accel.Tensor) (func(int64) float64, func(*accel.Tensor, int64, float64), error) {
	switch t.DType() {
	case accel.Float32:
		return func(i int64) float64 { return float64(t.Float32At(i)) },
			func(dst *accel.Tensor, i int64, v float64) { dst.SetFloat32At(i, float32(v)) },
			nil
	case accel.Float16:
		return func(i int64) float64 { return float64(float16.Frombits(t.Uint16At(i)).Float32()) },
			func(dst *accel.Tensor, i int64, v float64) {
				dst.SetUint16At(i, float16.Fromfloat32(float32(v)).Bits())
			},
			nil
	case accel.Int32:
		return func(i int64) float64 { return float64(t.Int32At(i)) },
			func(dst *accel.Tensor, i int64, v float64) { dst.SetInt32At(i, int32(v)) },
			nil
	default:
		return nil, nil, errors.Errorf("arithmetic unsupported for %s", t.DType())
	}
}

func unaryOp(x *accel.Tensor, fn func(float64) float64) (*accel.Tensor, error) {
	load, store, err := elemAccessors(x)
	if err != nil {
		return nil, err
	}
	out, err := accel.NewTensor(x.Shape(), x.DType())
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < x.NumElements(); i++ {
		store(out, i, fn(load(i)))
	}
	return out, nil
}

func binaryArgs(arg func(string) (*accel.Tensor, error), fn func(a, b float64) float64) (*accel.Tensor, error) {
	x, err := arg("x")
	if err != nil {
		return nil, err
	}
	y, err := arg("y")
	if err != nil {
		return nil, err
	}
	return binaryOp(x, y, fn)
}

// binaryOp supports equal shapes and single-element broadcast; the
// builder's richer broadcast combinations are not needed by the
// reference op set.
func binaryOp(x, y *accel.Tensor, fn func(a, b float64) float64) (*accel.Tensor, error) {
	loadX, store, err := elemAccessors(x)
	if err != nil {
		return nil, err
	}
	loadY, _, err := elemAccessors(y)
	if err != nil {
		return nil, err
	}

	nx, ny := x.NumElements(), y.NumElements()
	switch {
	case nx == ny && shapesEqual(x.Shape(), y.Shape()):
		out, err := accel.NewTensor(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < nx; i++ {
			store(out, i, fn(loadX(i), loadY(i)))
		}
		return out, nil
	case ny == 1:
		out, err := accel.NewTensor(x.Shape(), x.DType())
		if err != nil {
			return nil, err
		}
		b := loadY(0)
		for i := int64(0); i < nx; i++ {
			store(out, i, fn(loadX(i), b))
		}
		return out, nil
	case nx == 1:
		out, err := accel.NewTensor(y.Shape(), y.DType())
		if err != nil {
			return nil, err
		}
		a := loadX(0)
		for i := int64(0); i < ny; i++ {
			store(out, i, fn(a, loadY(i)))
		}
		return out, nil
	default:
		return nil, errors.Errorf("incompatible shapes %v and %v", x.Shape(), y.Shape())
	}
}

func shapesEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// matmul multiplies [M, K] x [K, N] float32 matrices (rank-2 only).
func matmul(x, y *accel.Tensor) (*accel.Tensor, error) {
	if x.DType() != accel.Float32 || y.DType() != accel.Float32 {
		return nil, errors.Errorf("matmul requires float32, got %s and %s", x.DType(), y.DType())
	}
	if x.Rank() != 2 || y.Rank() != 2 || x.Dim(1) != y.Dim(0) {
		return nil, errors.Errorf("matmul shape mismatch: %v x %v", x.Shape(), y.Shape())
	}
	m, k, n := x.Dim(0), x.Dim(1), y.Dim(1)
	out, err := accel.NewTensor([]int64{m, n}, accel.Float32)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < m; i++ {
		for j := int64(0); j < n; j++ {
			var sum float32
			for p := int64(0); p < k; p++ {
				sum += x.Float32At(i*k+p) * y.Float32At(p*n+j)
			}
			out.SetFloat32At(i*n+j, sum)
		}
	}
	return out, nil
}

// conv2d performs float32 2D cross-correlation with no padding.
// x: [N, C, H, W], w: [F, C, kH, kW].
func conv2d(x, w *accel.Tensor, strides []int64) (*accel.Tensor, error) {
	if x.DType() != accel.Float32 || w.DType() != accel.Float32 {
		return nil, errors.Errorf("conv requires float32, got %s and %s", x.DType(), w.DType())
	}
	if x.Rank() != 4 || w.Rank() != 4 || x.Dim(1) != w.Dim(1) {
		return nil, errors.Errorf("conv shape mismatch: %v with kernel %v", x.Shape(), w.Shape())
	}
	batch, channels, height, width := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	filters, kh, kw := w.Dim(0), w.Dim(2), w.Dim(3)
	sh, sw := strides[0], strides[1]
	outH := (height-kh)/sh + 1
	outW := (width-kw)/sw + 1
	if outH <= 0 || outW <= 0 {
		return nil, errors.Errorf("kernel %v larger than input %v", w.Shape(), x.Shape())
	}

	out, err := accel.NewTensor([]int64{batch, filters, outH, outW}, accel.Float32)
	if err != nil {
		return nil, err
	}
	for n := int64(0); n < batch; n++ {
		for f := int64(0); f < filters; f++ {
			for oh := int64(0); oh < outH; oh++ {
				for ow := int64(0); ow < outW; ow++ {
					var sum float32
					for c := int64(0); c < channels; c++ {
						for i := int64(0); i < kh; i++ {
							for j := int64(0); j < kw; j++ {
								xi := ((n*channels+c)*height+oh*sh+i)*width + ow*sw + j
								wi := ((f*channels+c)*kh+i)*kw + j
								sum += x.Float32At(xi) * w.Float32At(wi)
							}
						}
					}
					out.SetFloat32At(((n*filters+f)*outH+oh)*outW+ow, sum)
				}
			}
		}
	}
	return out, nil
}
