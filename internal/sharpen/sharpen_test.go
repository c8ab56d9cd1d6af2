package sharpen

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomRaster(t *testing.T, w, h int, seed int64) *raster.Raster {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := raster.New(w, h)
	rng.Read(img.Pix)
	return img
}

func TestSynthesizeIdentityForNonPositive(t *testing.T) {
	for _, intensity := range []float64{0, -0.0001, -1, -1e9, math.Inf(-1), math.NaN()} {
		assert.Equal(t, Identity, Synthesize(intensity), "intensity %v", intensity)
	}
}

func TestSynthesizeWeights(t *testing.T) {
	k := Synthesize(1.5)
	assert.Equal(t, 13.0, k[1][1])
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == 1 && j == 1 {
				continue
			}
			assert.Equal(t, -1.5, k[i][j])
		}
	}
}

func TestSynthesizeSumsToOne(t *testing.T) {
	for _, intensity := range []float64{-3, 0, 0.01, 0.3, 1, 1.5, 7.25, 42, 1e4} {
		assert.InDelta(t, 1.0, Synthesize(intensity).Sum(), 1e-9, "intensity %v", intensity)
	}
}

func TestConvolveIdentityIsNoop(t *testing.T) {
	img := randomRaster(t, 17, 11, 1)
	out := Convolve(img, Synthesize(0))

	assert.True(t, img.Equal(out))
	assert.NotSame(t, img, out)
}

func TestConvolvePreservesSizeAndBorder(t *testing.T) {
	img := randomRaster(t, 23, 9, 2)
	out := Convolve(img, Synthesize(2))

	require.Equal(t, img.Width, out.Width)
	require.Equal(t, img.Height, out.Height)
	for x := 0; x < img.Width; x++ {
		for _, y := range []int{0, img.Height - 1} {
			r0, g0, b0 := img.RGBAt(x, y)
			r1, g1, b1 := out.RGBAt(x, y)
			assert.Equal(t, [3]uint8{r0, g0, b0}, [3]uint8{r1, g1, b1}, "(%d,%d)", x, y)
		}
	}
	for y := 0; y < img.Height; y++ {
		for _, x := range []int{0, img.Width - 1} {
			r0, g0, b0 := img.RGBAt(x, y)
			r1, g1, b1 := out.RGBAt(x, y)
			assert.Equal(t, [3]uint8{r0, g0, b0}, [3]uint8{r1, g1, b1}, "(%d,%d)", x, y)
		}
	}
}

func TestConvolveDoesNotMutateInput(t *testing.T) {
	img := randomRaster(t, 8, 8, 3)
	before := img.Clone()
	Convolve(img, Synthesize(1))
	assert.True(t, before.Equal(img))
}

func TestConvolveInteriorValues(t *testing.T) {
	tests := []struct {
		name      string
		center    uint8
		neighbors uint8
		want      uint8
	}{
		{"in range", 60, 50, 100},
		{"clamped high", 100, 60, 255},
		{"clamped low", 10, 50, 0},
		{"flat", 77, 77, 77},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := raster.Filled(3, 3, tt.neighbors, tt.neighbors, tt.neighbors)
			img.SetRGB(1, 1, tt.center, tt.center, tt.center)

			out := Convolve(img, Synthesize(0.5))
			r, g, b := out.RGBAt(1, 1)
			assert.Equal(t, [3]uint8{tt.want, tt.want, tt.want}, [3]uint8{r, g, b})
		})
	}
}

func TestConvolveKernelOrientation(t *testing.T) {
	img := raster.New(3, 3)
	// top-left neighbour only
	img.SetRGB(0, 0, 200, 0, 0)
	var k Kernel
	k[0][0] = 0.5

	out := Convolve(img, k)
	r, _, _ := out.RGBAt(1, 1)
	assert.Equal(t, uint8(100), r)
}

func TestConvolveClampsLargeIntensity(t *testing.T) {
	img := raster.New(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				img.SetRGB(x, y, 255, 255, 255)
			}
		}
	}

	out := Convolve(img, Synthesize(1000))
	for y := 1; y < 15; y++ {
		for x := 1; x < 15; x++ {
			r, _, _ := out.RGBAt(x, y)
			if (x+y)%2 == 0 {
				assert.Equal(t, uint8(255), r)
			} else {
				assert.Equal(t, uint8(0), r)
			}
		}
	}
}

func TestConvolveSmallImagesAreCopied(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {2, 5}, {5, 2}} {
		img := randomRaster(t, size[0], size[1], 4)
		assert.True(t, img.Equal(Convolve(img, Synthesize(3))))
	}
}

func TestConvolveParallelMatchesSequential(t *testing.T) {
	img := randomRaster(t, 31, 29, 5)
	k := Synthesize(0.7)
	want := Convolve(img, k)

	for _, n := range []int{0, 1, 2, 3, 4, 8, 27, 64} {
		got := Convolve(img, k, Workers(n))
		assert.True(t, want.Equal(got), "workers=%d", n)
	}
}
