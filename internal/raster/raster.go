// Package raster holds the in-memory RGB image every enhancement stage
// consumes and produces.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Channels is the number of interleaved channels per pixel (R, G, B).
const Channels = 3

// Raster is an 8-bit RGB image stored as a flat row-major buffer.
// The pixel at (x, y) starts at Pix[Offset(x, y)].
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a black width×height raster. It panics if either dimension
// is not positive, like make does for a negative length.
func New(width, height int) *Raster {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("raster: invalid dimensions %dx%d", width, height))
	}
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, Channels*width*height),
	}
}

// Filled returns a width×height raster where every pixel is (r, g, b).
func Filled(width, height int, r, g, b uint8) *Raster {
	img := New(width, height)
	for i := 0; i < len(img.Pix); i += Channels {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
	}
	return img
}

// FromImage copies any decoded image into a new raster. Alpha is dropped
// without compositing, so partially transparent pixels keep their straight
// colour values.
func FromImage(src image.Image) *Raster {
	b := src.Bounds()
	nrgba, ok := src.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Draw(nrgba, nrgba.Bounds(), src, b.Min, xdraw.Src)
	}

	img := New(b.Dx(), b.Dy())
	for y := 0; y < img.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < img.Width; x++ {
			o := img.Offset(x, y)
			copy(img.Pix[o:o+Channels], row[4*x:4*x+Channels])
		}
	}
	return img
}

// Offset returns the index of the red channel of (x, y) in Pix.
func (r *Raster) Offset(x, y int) int {
	return Channels * (y*r.Width + x)
}

// RGBAt returns the channel values at (x, y).
func (r *Raster) RGBAt(x, y int) (uint8, uint8, uint8) {
	o := r.Offset(x, y)
	return r.Pix[o], r.Pix[o+1], r.Pix[o+2]
}

// SetRGB sets the channel values at (x, y).
func (r *Raster) SetRGB(x, y int, red, green, blue uint8) {
	o := r.Offset(x, y)
	r.Pix[o] = red
	r.Pix[o+1] = green
	r.Pix[o+2] = blue
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	pix := make([]uint8, len(r.Pix))
	copy(pix, r.Pix)
	return &Raster{Width: r.Width, Height: r.Height, Pix: pix}
}

// Equal reports whether both rasters have the same size and pixels.
func (r *Raster) Equal(other *Raster) bool {
	return r.Width == other.Width && r.Height == other.Height && bytes.Equal(r.Pix, other.Pix)
}

func (r *Raster) ColorModel() color.Model { return color.RGBAModel }

func (r *Raster) Bounds() image.Rectangle { return image.Rect(0, 0, r.Width, r.Height) }

func (r *Raster) At(x, y int) color.Color {
	if !image.Pt(x, y).In(r.Bounds()) {
		return color.RGBA{}
	}
	red, green, blue := r.RGBAt(x, y)
	return color.RGBA{R: red, G: green, B: blue, A: 0xff}
}

// ToRGBA converts the raster to an opaque *image.RGBA, the layout the
// resampler and the stdlib encoders work fastest with.
func (r *Raster) ToRGBA() *image.RGBA {
	dst := image.NewRGBA(r.Bounds())
	for i, j := 0, 0; i < len(r.Pix); i, j = i+Channels, j+4 {
		dst.Pix[j] = r.Pix[i]
		dst.Pix[j+1] = r.Pix[i+1]
		dst.Pix[j+2] = r.Pix[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst
}
