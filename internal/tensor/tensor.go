// Package tensor converts rasters to and from the NCHW float32 tensors
// exchanged with the inference runtime.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/Brownie44l1/upscaler/internal/raster"
)

// ErrTileMismatch is returned by Encode when the raster is not tile×tile.
var ErrTileMismatch = errors.New("tensor: raster does not match tile size")

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// New allocates a zero tensor of the given shape.
func New(shape ...int64) *Tensor {
	return &Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  make([]float32, elements(shape)),
	}
}

func elements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// ShapeError reports a tensor that cannot be decoded into a raster.
type ShapeError struct {
	Shape  []int64
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tensor: unexpected shape %v: %s", e.Shape, e.Reason)
}

// Encode lays out a tile×tile raster as a (1, 3, tile, tile) tensor with
// values channel/255. All red values come first, then green, then blue.
func Encode(img *raster.Raster, tile int) (*Tensor, error) {
	if tile <= 0 || img.Width != tile || img.Height != tile {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrTileMismatch, img.Width, img.Height, tile, tile)
	}

	t := New(1, raster.Channels, int64(tile), int64(tile))
	plane := tile * tile
	for i := 0; i < plane; i++ {
		p := i * raster.Channels
		t.Data[i] = float32(img.Pix[p]) / 255
		t.Data[plane+i] = float32(img.Pix[p+1]) / 255
		t.Data[2*plane+i] = float32(img.Pix[p+2]) / 255
	}
	return t, nil
}

// Decode converts a (1, 3, H, W) tensor to a W×H raster. Each value is
// scaled by 255, clamped to [0, 255] and truncated. The shape is checked
// before any value is read.
func Decode(t *Tensor) (*raster.Raster, error) {
	if err := checkShape(t); err != nil {
		return nil, err
	}

	height, width := int(t.Shape[2]), int(t.Shape[3])
	img := raster.New(width, height)
	plane := width * height
	for i := 0; i < plane; i++ {
		p := i * raster.Channels
		img.Pix[p] = denormalize(t.Data[i])
		img.Pix[p+1] = denormalize(t.Data[plane+i])
		img.Pix[p+2] = denormalize(t.Data[2*plane+i])
	}
	return img, nil
}

func checkShape(t *Tensor) error {
	switch {
	case len(t.Shape) != 4:
		return &ShapeError{Shape: t.Shape, Reason: fmt.Sprintf("rank %d, want 4", len(t.Shape))}
	case t.Shape[0] != 1:
		return &ShapeError{Shape: t.Shape, Reason: fmt.Sprintf("batch %d, want 1", t.Shape[0])}
	case t.Shape[1] != raster.Channels:
		return &ShapeError{Shape: t.Shape, Reason: fmt.Sprintf("%d channels, want %d", t.Shape[1], raster.Channels)}
	case t.Shape[2] <= 0 || t.Shape[3] <= 0:
		return &ShapeError{Shape: t.Shape, Reason: "spatial dimensions must be positive"}
	case int64(len(t.Data)) != elements(t.Shape):
		return &ShapeError{Shape: t.Shape, Reason: fmt.Sprintf("%d values for %d elements", len(t.Data), elements(t.Shape))}
	}
	return nil
}

func denormalize(v float32) uint8 {
	s := v * 255
	switch {
	case s <= 0 || math.IsNaN(float64(s)):
		return 0
	case s >= 255:
		return 255
	}
	return uint8(s)
}
