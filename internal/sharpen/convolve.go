package sharpen

import (
	"math"

	"github.com/Brownie44l1/upscaler/internal/raster"
	"golang.org/x/sync/errgroup"
)

// Option configures Convolve.
type Option func(c *convolver)

// Workers splits the interior rows across n goroutines. Values below 2 run
// sequentially. The output does not depend on n.
func Workers(n int) Option {
	return func(c *convolver) {
		c.workers = n
	}
}

type convolver struct {
	workers int
}

// Convolve applies k to img and returns a new raster of the same size.
// Pixels on the outermost rows and columns are copied unchanged. Interior
// channel sums are clamped to [0, 255] and truncated.
func Convolve(img *raster.Raster, k Kernel, opts ...Option) *raster.Raster {
	c := convolver{workers: 1}
	for _, opt := range opts {
		opt(&c)
	}

	out := img.Clone()
	if img.Width < 3 || img.Height < 3 || k.IsIdentity() {
		return out
	}

	// interior rows are 1..Height-2
	rows := img.Height - 2
	if c.workers < 2 || rows < 2 {
		convolveRows(out, img, k, 1, img.Height-1)
		return out
	}

	workers := min(c.workers, rows)
	chunk := (rows + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 1; start < img.Height-1; start += chunk {
		start, end := start, min(start+chunk, img.Height-1)
		g.Go(func() error {
			convolveRows(out, img, k, start, end)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// convolveRows writes rows [y0, y1) of dst. Each call touches a disjoint
// row range of dst and only reads src.
func convolveRows(dst, src *raster.Raster, k Kernel, y0, y1 int) {
	stride := raster.Channels * src.Width
	for y := y0; y < y1; y++ {
		for x := 1; x < src.Width-1; x++ {
			var r, g, b float64
			for i := 0; i < 3; i++ {
				row := (y+i-1)*stride + (x-1)*raster.Channels
				for j := 0; j < 3; j++ {
					w := k[i][j]
					p := row + j*raster.Channels
					r += float64(src.Pix[p]) * w
					g += float64(src.Pix[p+1]) * w
					b += float64(src.Pix[p+2]) * w
				}
			}
			o := dst.Offset(x, y)
			dst.Pix[o] = clampToByte(r)
			dst.Pix[o+1] = clampToByte(g)
			dst.Pix[o+2] = clampToByte(b)
		}
	}
}

func clampToByte(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
