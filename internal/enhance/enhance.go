// Package enhance composes the resampler, the sharpen kernel and the
// inference bridge into the two upscaling strategies.
package enhance

import (
	"errors"
	"fmt"
	"io"

	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/Brownie44l1/upscaler/internal/resample"
	"github.com/Brownie44l1/upscaler/internal/sharpen"
	"github.com/Brownie44l1/upscaler/internal/tensor"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultScale is the classical upscale factor.
	DefaultScale = 2
	// DefaultTileSize is the square input edge the AI strategy feeds the model.
	DefaultTileSize = 128
	// aiScale is fixed relative to the original image, whatever the model returns.
	aiScale = 2
)

// ErrInvalidScale is returned by Classical for scale factors below 1.
var ErrInvalidScale = errors.New("enhance: scale factor must be at least 1")

// Runner executes a model once. model.Runtime implements it.
type Runner interface {
	Run(modelPath string, input *tensor.Tensor) (*tensor.Tensor, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(modelPath string, input *tensor.Tensor) (*tensor.Tensor, error)

func (f RunnerFunc) Run(modelPath string, input *tensor.Tensor) (*tensor.Tensor, error) {
	return f(modelPath, input)
}

// Option configures an Enhancer.
type Option func(e *Enhancer)

// WithRunner sets the inference backend used by AI.
func WithRunner(r Runner) Option {
	return func(e *Enhancer) {
		e.runner = r
	}
}

// WithLogger sets the logger progress messages go to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Enhancer) {
		e.logger = l
	}
}

// WithWorkers sets how many goroutines the sharpen step may use.
func WithWorkers(n int) Option {
	return func(e *Enhancer) {
		e.workers = n
	}
}

// Enhancer runs the classical and AI strategies.
type Enhancer struct {
	runner  Runner
	logger  logrus.FieldLogger
	workers int
}

// New creates an Enhancer. Without WithRunner, AI always fails.
func New(opts ...Option) *Enhancer {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	e := &Enhancer{
		logger:  quiet,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classical resizes img by scale with Lanczos-3 and then sharpens it with
// the kernel for intensity.
func (e *Enhancer) Classical(img *raster.Raster, scale int, intensity float64) (*raster.Raster, error) {
	if scale < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidScale, scale)
	}
	log := e.logger.WithField("strategy", "classical")

	resized, err := resample.Scale(img, scale)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"from": dims(img),
		"to":   dims(resized),
	}).Info("upscaled image")

	kernel := sharpen.Synthesize(intensity)
	log.WithField("intensity", intensity).Info("sharpening")
	return sharpen.Convolve(resized, kernel, sharpen.Workers(e.workers)), nil
}

// AI upscales img to twice its size through the model at modelPath. The
// image is squeezed into a tile×tile input, the model output is decoded at
// whatever size the model produced, and that is resized to 2x the original.
// Encode, inference and decode errors are returned unchanged.
func (e *Enhancer) AI(img *raster.Raster, modelPath string, tile int) (*raster.Raster, error) {
	if e.runner == nil {
		return nil, errors.New("enhance: no inference runner configured")
	}
	log := e.logger.WithFields(logrus.Fields{
		"strategy": "ai",
		"model":    modelPath,
	})

	finalWidth, finalHeight := img.Width*aiScale, img.Height*aiScale

	tileImg, err := resample.Resize(img, tile, tile)
	if err != nil {
		return nil, err
	}
	input, err := tensor.Encode(tileImg, tile)
	if err != nil {
		return nil, err
	}

	log.WithField("tile", tile).Info("running model")
	output, err := e.runner.Run(modelPath, input)
	if err != nil {
		return nil, err
	}

	decoded, err := tensor.Decode(output)
	if err != nil {
		return nil, err
	}
	log.WithField("size", dims(decoded)).Info("model output decoded")

	final, err := resample.Resize(decoded, finalWidth, finalHeight)
	if err != nil {
		return nil, err
	}
	log.WithField("size", dims(final)).Info("resized to final size")
	return final, nil
}

func dims(img *raster.Raster) string {
	return fmt.Sprintf("%dx%d", img.Width, img.Height)
}
