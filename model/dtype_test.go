package model

import "testing"

func TestDTypeSize(t *testing.T) {
	tests := []struct {
		dtype DType
		want  int
	}{
		{Float32, 4},
		{Float16, 2},
		{Int32, 4},
		{Int64, 8},
		{Float64, 8},
		{Bool, 1},
		{InvalidDType, 0},
	}
	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.want {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.want)
		}
	}
}

func TestNumElements(t *testing.T) {
	tests := []struct {
		shape []int64
		want  int64
	}{
		{nil, 1},
		{[]int64{}, 1},
		{[]int64{3}, 3},
		{[]int64{2, 3, 4}, 24},
		{[]int64{DynamicDim, 3}, -1},
	}
	for _, tt := range tests {
		if got := NumElements(tt.shape); got != tt.want {
			t.Errorf("NumElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}
