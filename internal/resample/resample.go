// Package resample resizes rasters to exact dimensions with a Lanczos-3
// filter.
package resample

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/nfnt/resize"
)

// ErrInvalidSize is returned for non-positive target dimensions.
var ErrInvalidSize = errors.New("resample: target dimensions must be positive")

// Filter is the interpolation used for every resize, up or down.
const Filter = resize.Lanczos3

// Resize returns img scaled to exactly width×height. The aspect ratio is not
// preserved.
func Resize(img *raster.Raster, width, height int) (*raster.Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if width == img.Width && height == img.Height {
		return img.Clone(), nil
	}

	resized := resize.Resize(uint(width), uint(height), img.ToRGBA(), Filter)
	return raster.FromImage(resized), nil
}

// Scale resizes img by an integer factor in both axes.
func Scale(img *raster.Raster, factor int) (*raster.Raster, error) {
	return Resize(img, img.Width*factor, img.Height*factor)
}
