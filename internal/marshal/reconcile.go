// Package marshal converts host tensors into accelerator-native tensors
// and copies native outputs back into host-owned buffers.
package marshal

import (
	"github.com/pkg/errors"

	edgeml "github.com/gomlx/go-edgeml"
	"github.com/gomlx/go-edgeml/model"
)

// Reconcile resolves a statically inferred output shape (which may carry
// model.DynamicDim entries) against the concrete shape reported by the
// accelerator at runtime.
//
// The runtime shape must be fully resolved. When the two shapes already
// agree element-wise the inferred shape is returned verbatim, preserving
// its rank-0 representation; an inferred scalar paired with a runtime
// shape of exactly [1] is a scalar result, since the accelerator
// represents scalars as single-element rank-1 arrays.
func Reconcile(inferred, runtime []int64) ([]int64, error) {
	for _, dim := range runtime {
		if dim == model.DynamicDim {
			return nil, errors.Wrapf(edgeml.ErrShapeMismatch,
				"runtime shape %v still has an unresolved dimension", runtime)
		}
	}

	if shapesEqual(inferred, runtime) {
		return inferred, nil
	}

	if len(inferred) == 0 && len(runtime) == 1 && runtime[0] == 1 {
		return []int64{}, nil
	}

	if len(inferred) != len(runtime) {
		return nil, errors.Wrapf(edgeml.ErrRankMismatch,
			"inferred rank %d, runtime rank %d", len(inferred), len(runtime))
	}

	out := make([]int64, len(inferred))
	for i, dim := range inferred {
		switch {
		case dim == model.DynamicDim:
			out[i] = runtime[i]
		case dim != runtime[i]:
			return nil, errors.Wrapf(edgeml.ErrDimensionConflict,
				"dimension %d: inferred %d, runtime %d", i, dim, runtime[i])
		default:
			out[i] = dim
		}
	}
	return out, nil
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
