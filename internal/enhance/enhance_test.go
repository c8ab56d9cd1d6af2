package enhance

import (
	"errors"
	"testing"

	"github.com/Brownie44l1/upscaler/internal/model"
	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/Brownie44l1/upscaler/internal/tensor"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Runner = (*model.Runtime)(nil)

func TestClassicalFlatGreyStaysGrey(t *testing.T) {
	img := raster.Filled(4, 4, 128, 128, 128)

	out, err := New().Classical(img, DefaultScale, 1.5)
	require.NoError(t, err)
	require.Equal(t, 8, out.Width)
	require.Equal(t, 8, out.Height)
	assert.True(t, raster.Filled(8, 8, 128, 128, 128).Equal(out))
}

func TestClassicalZeroIntensityIsPlainResize(t *testing.T) {
	img := raster.Filled(5, 3, 10, 200, 30)
	img.SetRGB(2, 1, 255, 0, 255)

	sharp, err := New().Classical(img, 2, 0)
	require.NoError(t, err)
	plain, err := New().Classical(img, 2, -4)
	require.NoError(t, err)

	assert.Equal(t, 10, sharp.Width)
	assert.Equal(t, 6, sharp.Height)
	assert.True(t, sharp.Equal(plain))
}

func TestClassicalWorkersDoNotChangeOutput(t *testing.T) {
	img := raster.New(9, 7)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 37)
	}

	want, err := New().Classical(img, 3, 0.8)
	require.NoError(t, err)
	got, err := New(WithWorkers(4)).Classical(img, 3, 0.8)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestClassicalRejectsBadScale(t *testing.T) {
	_, err := New().Classical(raster.New(2, 2), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestClassicalDoesNotMutateInput(t *testing.T) {
	img := raster.Filled(3, 3, 50, 60, 70)
	before := img.Clone()
	_, err := New().Classical(img, 2, 2)
	require.NoError(t, err)
	assert.True(t, before.Equal(img))
}

func TestAIZeroModelOutput(t *testing.T) {
	var gotPath string
	var gotShape []int64
	runner := RunnerFunc(func(modelPath string, input *tensor.Tensor) (*tensor.Tensor, error) {
		gotPath = modelPath
		gotShape = input.Shape
		return tensor.New(1, 3, 64, 64), nil
	})
	img := raster.Filled(50, 30, 200, 100, 50)

	out, err := New(WithRunner(runner)).AI(img, "sr.onnx", DefaultTileSize)
	require.NoError(t, err)

	assert.Equal(t, "sr.onnx", gotPath)
	assert.Equal(t, []int64{1, 3, 128, 128}, gotShape)
	require.Equal(t, 100, out.Width)
	require.Equal(t, 60, out.Height)
	assert.True(t, raster.Filled(100, 60, 0, 0, 0).Equal(out))
}

func TestAIFeedsNormalizedTile(t *testing.T) {
	runner := RunnerFunc(func(_ string, input *tensor.Tensor) (*tensor.Tensor, error) {
		// echo the input back, like an identity model
		return &tensor.Tensor{Shape: input.Shape, Data: input.Data}, nil
	})
	img := raster.Filled(10, 20, 51, 102, 204)

	out, err := New(WithRunner(runner)).AI(img, "identity.onnx", 16)
	require.NoError(t, err)
	assert.True(t, raster.Filled(20, 40, 51, 102, 204).Equal(out))
}

func TestAIRankThreeOutputIsShapeError(t *testing.T) {
	runner := RunnerFunc(func(string, *tensor.Tensor) (*tensor.Tensor, error) {
		return tensor.New(3, 64, 64), nil
	})

	out, err := New(WithRunner(runner)).AI(raster.New(8, 8), "bad.onnx", 4)
	assert.Nil(t, out)

	var shapeErr *tensor.ShapeError
	require.True(t, errors.As(err, &shapeErr), "got %v", err)
	assert.Equal(t, []int64{3, 64, 64}, shapeErr.Shape)
}

func TestAIPropagatesRunnerErrors(t *testing.T) {
	for _, want := range []error{
		&model.ModelLoadError{Path: "m.onnx", Err: errors.New("not a graph")},
		&model.InferenceError{Path: "m.onnx", Err: errors.New("unsupported op")},
	} {
		runner := RunnerFunc(func(string, *tensor.Tensor) (*tensor.Tensor, error) {
			return nil, want
		})
		out, err := New(WithRunner(runner)).AI(raster.New(8, 8), "m.onnx", 4)
		assert.Nil(t, out)
		assert.Same(t, want, err)
	}
}

func TestAIWithoutRunner(t *testing.T) {
	_, err := New().AI(raster.New(4, 4), "m.onnx", 4)
	assert.Error(t, err)
}

func TestProgressIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	runner := RunnerFunc(func(string, *tensor.Tensor) (*tensor.Tensor, error) {
		return tensor.New(1, 3, 8, 8), nil
	})
	e := New(WithLogger(logger), WithRunner(runner))

	_, err := e.Classical(raster.New(3, 3), 2, 1)
	require.NoError(t, err)
	_, err = e.AI(raster.New(3, 3), "m.onnx", 4)
	require.NoError(t, err)

	var strategies []any
	for _, entry := range hook.AllEntries() {
		assert.Equal(t, logrus.InfoLevel, entry.Level)
		strategies = append(strategies, entry.Data["strategy"])
	}
	assert.Contains(t, strategies, "classical")
	assert.Contains(t, strategies, "ai")
	assert.Equal(t, "6x6", hook.LastEntry().Data["size"])
}
