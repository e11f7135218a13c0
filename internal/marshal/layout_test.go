package marshal

import (
	"errors"
	"testing"

	edgeml "github.com/gomlx/go-edgeml"
)

func TestDiscoverLayoutContiguous(t *testing.T) {
	layout, err := DiscoverLayout([]int64{2, 3, 4}, []int64{12, 4, 1})
	if err != nil {
		t.Fatalf("DiscoverLayout failed: %v", err)
	}
	want := StridedLayout{BlockSize: 24, NumBlocks: 1, Stride: 24}
	if layout != want {
		t.Errorf("layout = %+v, want %+v", layout, want)
	}
}

func TestDiscoverLayoutRowPadding(t *testing.T) {
	// 3x5 logical rows stored with 8-element physical rows.
	layout, err := DiscoverLayout([]int64{3, 5}, []int64{8, 1})
	if err != nil {
		t.Fatalf("DiscoverLayout failed: %v", err)
	}
	want := StridedLayout{BlockSize: 5, NumBlocks: 3, Stride: 8}
	if layout != want {
		t.Errorf("layout = %+v, want %+v", layout, want)
	}
}

func TestDiscoverLayoutOuterStride(t *testing.T) {
	// Inner two axes contiguous (3*4=12 elements), outermost padded to 16.
	layout, err := DiscoverLayout([]int64{2, 3, 4}, []int64{16, 4, 1})
	if err != nil {
		t.Fatalf("DiscoverLayout failed: %v", err)
	}
	want := StridedLayout{BlockSize: 12, NumBlocks: 2, Stride: 16}
	if layout != want {
		t.Errorf("layout = %+v, want %+v", layout, want)
	}
}

func TestDiscoverLayoutSizeOneAxes(t *testing.T) {
	// Size-1 axes carry arbitrary strides and must not affect the scan.
	layout, err := DiscoverLayout([]int64{1, 3, 1, 5}, []int64{999, 8, 777, 1})
	if err != nil {
		t.Fatalf("DiscoverLayout failed: %v", err)
	}
	want := StridedLayout{BlockSize: 5, NumBlocks: 3, Stride: 8}
	if layout != want {
		t.Errorf("layout = %+v, want %+v", layout, want)
	}
}

func TestDiscoverLayoutScalar(t *testing.T) {
	layout, err := DiscoverLayout([]int64{}, []int64{})
	if err != nil {
		t.Fatalf("DiscoverLayout failed: %v", err)
	}
	want := StridedLayout{BlockSize: 1, NumBlocks: 1, Stride: 1}
	if layout != want {
		t.Errorf("layout = %+v, want %+v", layout, want)
	}
}

func TestDiscoverLayoutTwoNonContiguousAxes(t *testing.T) {
	// Both the row and plane axes are padded; only one gap is supported.
	_, err := DiscoverLayout([]int64{2, 3, 4}, []int64{32, 8, 1})
	if !errors.Is(err, edgeml.ErrUnsupportedLayout) {
		t.Fatalf("expected ErrUnsupportedLayout, got %v", err)
	}
}
