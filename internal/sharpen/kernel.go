// Package sharpen builds unsharp-mask kernels and applies them to rasters.
package sharpen

// Kernel is a 3x3 convolution kernel indexed [row][column]. Row i and
// column j weigh the neighbour at offset (dx=j-1, dy=i-1).
type Kernel [3][3]float64

// Identity leaves every pixel unchanged.
var Identity = Kernel{
	{0, 0, 0},
	{0, 1, 0},
	{0, 0, 0},
}

// Synthesize builds a sharpen kernel for the given intensity. Intensities
// at or below zero (and NaN) give the identity kernel. Otherwise the eight
// neighbours weigh -intensity and the centre 1+8*intensity, so the weights
// always sum to 1.
func Synthesize(intensity float64) Kernel {
	if !(intensity > 0) {
		return Identity
	}
	neighbor := -intensity
	center := 1 - 8*neighbor
	return Kernel{
		{neighbor, neighbor, neighbor},
		{neighbor, center, neighbor},
		{neighbor, neighbor, neighbor},
	}
}

// Sum returns the total of the nine weights.
func (k Kernel) Sum() float64 {
	var s float64
	for _, row := range k {
		for _, w := range row {
			s += w
		}
	}
	return s
}

// IsIdentity reports whether k is the identity kernel.
func (k Kernel) IsIdentity() bool {
	return k == Identity
}
