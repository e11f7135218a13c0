package accel

import (
	"testing"
)

func TestNewTensorContiguous(t *testing.T) {
	tensor, err := NewTensor([]int64{2, 3}, Float32)
	if err != nil {
		t.Fatalf("NewTensor() error = %v", err)
	}
	if tensor.Rank() != 2 || tensor.Dim(0) != 2 || tensor.Dim(1) != 3 {
		t.Errorf("shape = %v", tensor.Shape())
	}
	if tensor.NumElements() != 6 {
		t.Errorf("NumElements() = %d, want 6", tensor.NumElements())
	}
	if len(tensor.Data()) != 24 {
		t.Errorf("backing storage = %d bytes, want 24", len(tensor.Data()))
	}
	strides := tensor.Strides()
	if strides[0] != 3 || strides[1] != 1 {
		t.Errorf("strides = %v, want [3 1]", strides)
	}
}

func TestNewTensorDynamicShapeRejected(t *testing.T) {
	if _, err := NewTensor([]int64{-1, 3}, Float32); err == nil {
		t.Fatal("expected an error for a dynamic shape")
	}
}

func TestNewTensorWithDataAliases(t *testing.T) {
	data := make([]byte, 16)
	tensor, err := NewTensorWithData([]int64{4}, nil, Float32, data)
	if err != nil {
		t.Fatalf("NewTensorWithData() error = %v", err)
	}
	tensor.SetFloat32At(2, 7.5)
	check, _ := NewTensorWithData([]int64{4}, nil, Float32, data)
	if got := check.Float32At(2); got != 7.5 {
		t.Errorf("aliased read = %f, want 7.5", got)
	}
}

func TestNewTensorWithDataShortBuffer(t *testing.T) {
	if _, err := NewTensorWithData([]int64{4}, nil, Float32, make([]byte, 8)); err == nil {
		t.Fatal("expected an error for a short buffer")
	}
}

func TestNewTensorWithDataStrideRankMismatch(t *testing.T) {
	if _, err := NewTensorWithData([]int64{2, 2}, []int64{1}, Float32, make([]byte, 16)); err == nil {
		t.Fatal("expected an error for mismatched stride rank")
	}
}

func TestTensorElementAccess(t *testing.T) {
	tensor, err := NewTensor([]int64{3}, Int32)
	if err != nil {
		t.Fatalf("NewTensor() error = %v", err)
	}
	tensor.SetInt32At(0, -1)
	tensor.SetInt32At(2, 1<<30)
	if tensor.Int32At(0) != -1 || tensor.Int32At(1) != 0 || tensor.Int32At(2) != 1<<30 {
		t.Error("int32 element round trip failed")
	}
}

func TestFeaturesBind(t *testing.T) {
	f := NewFeatures()
	x, _ := NewTensor([]int64{1}, Float32)
	if err := f.Bind("x", x); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := f.Bind("x", x); err == nil {
		t.Fatal("expected duplicate bind to fail")
	}
	if f.Len() != 1 || f.Get("x") != x {
		t.Error("bound tensor not retrievable")
	}
	if names := f.Names(); len(names) != 1 || names[0] != "x" {
		t.Errorf("Names() = %v", names)
	}
}

func TestResults(t *testing.T) {
	r := NewResults()
	if r.Get("y") != nil {
		t.Error("expected nil for unset output")
	}
	y, _ := NewTensor([]int64{1}, Float32)
	r.Set("y", y)
	if r.Get("y") != y {
		t.Error("set output not retrievable")
	}
}
