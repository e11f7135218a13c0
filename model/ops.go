package model

// This file contains the operation builders understood by the reference
// accelerator interpreter.

// Identity creates an identity operation that copies a value with a new
// name. This is useful for renaming outputs.
func (b *Builder) Identity(name string, x *Value) *Value {
	return b.addOp("identity", map[string]*Value{
		"x": x,
	}, nil, name, x.dtype, x.shape)
}

// Add performs element-wise addition: z = x + y.
func (b *Builder) Add(x, y *Value) *Value {
	outShape := broadcastShape(x.shape, y.shape)
	return b.addOp("add", map[string]*Value{
		"x": x,
		"y": y,
	}, nil, b.genName("add"), x.dtype, outShape)
}

// Sub performs element-wise subtraction: z = x - y.
func (b *Builder) Sub(x, y *Value) *Value {
	outShape := broadcastShape(x.shape, y.shape)
	return b.addOp("sub", map[string]*Value{
		"x": x,
		"y": y,
	}, nil, b.genName("sub"), x.dtype, outShape)
}

// Mul performs element-wise multiplication: z = x * y.
func (b *Builder) Mul(x, y *Value) *Value {
	outShape := broadcastShape(x.shape, y.shape)
	return b.addOp("mul", map[string]*Value{
		"x": x,
		"y": y,
	}, nil, b.genName("mul"), x.dtype, outShape)
}

// Relu applies rectified linear unit: z = max(x, 0).
func (b *Builder) Relu(x *Value) *Value {
	return b.addOp("relu", map[string]*Value{
		"x": x,
	}, nil, b.genName("relu"), x.dtype, x.shape)
}

// MatMul performs matrix multiplication.
// x: [..., M, K], y: [..., K, N] -> z: [..., M, N]
func (b *Builder) MatMul(x, y *Value) *Value {
	xShape := x.shape
	yShape := y.shape
	outShape := make([]int64, len(xShape))
	copy(outShape, xShape[:len(xShape)-1])
	outShape[len(outShape)-1] = yShape[len(yShape)-1]
	return b.addOp("matmul", map[string]*Value{
		"x": x,
		"y": y,
	}, nil, b.genName("matmul"), x.dtype, outShape)
}

// Conv performs 2D cross-correlation with the given strides and no
// padding.
// x: [N, C, H, W], w: [F, C, kH, kW] -> z: [N, F, outH, outW]
func (b *Builder) Conv(x, w *Value, strides []int64) *Value {
	if strides == nil {
		strides = []int64{1, 1}
	}
	xShape := x.shape
	wShape := w.shape
	outShape := []int64{
		xShape[0],
		wShape[0],
		convDim(xShape[2], wShape[2], strides[0]),
		convDim(xShape[3], wShape[3], strides[1]),
	}
	return b.addOp("conv", map[string]*Value{
		"x":      x,
		"weight": w,
	}, map[string]Attr{
		"strides": {Ints: strides},
	}, b.genName("conv"), x.dtype, outShape)
}

// convDim computes one spatial output dimension. A dynamic input
// dimension stays dynamic; it is resolved against the concrete output at
// prediction time.
func convDim(dim, kernel, stride int64) int64 {
	if dim == DynamicDim {
		return DynamicDim
	}
	return (dim-kernel)/stride + 1
}

// broadcastShape computes the element-wise broadcast of two shapes.
// Dimensions are aligned from the right; a size-1 dimension stretches to
// match its partner.
func broadcastShape(a, b []int64) []int64 {
	rank := len(a)
	if len(b) > rank {
		rank = len(b)
	}
	out := make([]int64, rank)
	for i := 0; i < rank; i++ {
		da, db := int64(1), int64(1)
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		switch {
		case da == DynamicDim || db == DynamicDim:
			out[rank-1-i] = DynamicDim
		case db > da:
			out[rank-1-i] = db
		default:
			out[rank-1-i] = da
		}
	}
	return out
}
