package marshal

import (
	"errors"
	"testing"

	edgeml "github.com/gomlx/go-edgeml"
	"github.com/gomlx/go-edgeml/model"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		inferred []int64
		runtime  []int64
		want     []int64
		wantErr  error
	}{
		{
			name:     "static shapes equal",
			inferred: []int64{2, 3},
			runtime:  []int64{2, 3},
			want:     []int64{2, 3},
		},
		{
			name:     "scalar against single-element vector",
			inferred: []int64{},
			runtime:  []int64{1},
			want:     []int64{},
		},
		{
			name:     "true rank-1 single element stays rank-1",
			inferred: []int64{1},
			runtime:  []int64{1},
			want:     []int64{1},
		},
		{
			name:     "dynamic dimension resolved from runtime",
			inferred: []int64{model.DynamicDim, 3},
			runtime:  []int64{5, 3},
			want:     []int64{5, 3},
		},
		{
			name:     "all dimensions dynamic",
			inferred: []int64{model.DynamicDim, model.DynamicDim},
			runtime:  []int64{4, 7},
			want:     []int64{4, 7},
		},
		{
			name:     "rank mismatch",
			inferred: []int64{2, 3},
			runtime:  []int64{2, 3, 1},
			wantErr:  edgeml.ErrRankMismatch,
		},
		{
			name:     "static dimension conflict",
			inferred: []int64{2, 3},
			runtime:  []int64{2, 4},
			wantErr:  edgeml.ErrDimensionConflict,
		},
		{
			name:     "runtime shape still dynamic",
			inferred: []int64{2, 3},
			runtime:  []int64{2, model.DynamicDim},
			wantErr:  edgeml.ErrShapeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(tt.inferred, tt.runtime)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Reconcile(%v, %v) error = %v, want %v", tt.inferred, tt.runtime, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconcile(%v, %v) failed: %v", tt.inferred, tt.runtime, err)
			}
			if !shapesEqual(got, tt.want) {
				t.Errorf("Reconcile(%v, %v) = %v, want %v", tt.inferred, tt.runtime, got, tt.want)
			}
			if len(tt.want) == 0 && len(got) != 0 {
				t.Errorf("expected a rank-0 result, got rank %d", len(got))
			}
		})
	}
}
