package model

import (
	"errors"
	"fmt"
	"os"

	"github.com/Brownie44l1/upscaler/internal/tensor"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// Runtime runs ONNX graphs through onnxruntime. Every Run loads its graph,
// builds a session, runs it once and destroys it again.
type Runtime struct {
	logger  logrus.FieldLogger
	threads int
}

// NewRuntime initializes the onnxruntime environment. libraryPath points at
// the onnxruntime shared library; empty uses the platform default. threads
// caps intra-op parallelism, 0 leaves it to onnxruntime.
func NewRuntime(libraryPath string, threads int, logger logrus.FieldLogger) (*Runtime, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	logger.WithField("library", libraryPath).Debug("onnxruntime environment ready")

	return &Runtime{logger: logger, threads: threads}, nil
}

// Inspect reports the input and output slots of the graph at modelPath.
func (r *Runtime) Inspect(modelPath string) (*ModelInfo, error) {
	inputs, outputs, err := slots(modelPath)
	if err != nil {
		return nil, err
	}
	return &ModelInfo{
		Path:    modelPath,
		Inputs:  slotInfos(inputs),
		Outputs: slotInfos(outputs),
	}, nil
}

// Run feeds input to the graph's first input slot and returns a copy of the
// first output slot. The output shape is whatever the graph produces.
func (r *Runtime) Run(modelPath string, input *tensor.Tensor) (*tensor.Tensor, error) {
	inputs, outputs, err := slots(modelPath)
	if err != nil {
		return nil, err
	}
	inName, outName := inputs[0].Name, outputs[0].Name

	log := r.logger.WithFields(logrus.Fields{
		"model":  modelPath,
		"input":  inName,
		"output": outName,
	})
	log.Info("loading ONNX model")

	inTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inTensor.Destroy()

	var outValue ort.Value
	if isStatic(outputs[0].Dimensions) && outputs[0].DataType == ort.TensorElementDataTypeFloat {
		outTensor, err := ort.NewEmptyTensor[float32](outputs[0].Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to create output tensor: %w", err)
		}
		outValue = outTensor
	}

	options, err := r.sessionOptions()
	if err != nil {
		if outValue != nil {
			outValue.Destroy()
		}
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inName}, []string{outName}, options)
	if err != nil {
		if outValue != nil {
			outValue.Destroy()
		}
		return nil, &ModelLoadError{Path: modelPath, Err: fmt.Errorf("failed to create ONNX session: %w", err)}
	}
	defer session.Destroy()

	log.Info("running inference")
	results := []ort.Value{outValue}
	runErr := session.Run([]ort.Value{inTensor}, results)
	if results[0] != nil {
		defer results[0].Destroy()
	}
	if runErr != nil {
		return nil, &InferenceError{Path: modelPath, Err: runErr}
	}

	out, ok := results[0].(*ort.Tensor[float32])
	if !ok {
		return nil, &InferenceError{Path: modelPath, Err: fmt.Errorf("output %q is %T, want float32 tensor", outName, results[0])}
	}

	shape := out.GetShape()
	data := out.GetData()
	result := &tensor.Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  append([]float32(nil), data...),
	}
	log.WithField("shape", result.Shape).Info("inference complete")
	return result, nil
}

// Close tears down the onnxruntime environment.
func (r *Runtime) Close() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			r.logger.WithError(err).Warn("failed to destroy ONNX environment")
		}
	}
}

func (r *Runtime) sessionOptions() (*ort.SessionOptions, error) {
	if r.threads <= 0 {
		return nil, nil
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if err := options.SetIntraOpNumThreads(r.threads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	return options, nil
}

// slots reads the graph's input and output descriptions, which doubles as
// the check that modelPath holds a parseable graph.
func slots(modelPath string) ([]ort.InputOutputInfo, []ort.InputOutputInfo, error) {
	st, err := os.Stat(modelPath)
	if err != nil {
		return nil, nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if st.IsDir() {
		return nil, nil, &ModelLoadError{Path: modelPath, Err: errors.New("is a directory")}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, nil, &ModelLoadError{
			Path: modelPath,
			Err:  fmt.Errorf("graph has %d inputs and %d outputs, want at least one of each", len(inputs), len(outputs)),
		}
	}
	return inputs, outputs, nil
}

func slotInfos(infos []ort.InputOutputInfo) []SlotInfo {
	out := make([]SlotInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, SlotInfo{
			Name:     info.Name,
			Shape:    append([]int64(nil), info.Dimensions...),
			DataType: fmt.Sprint(info.DataType),
		})
	}
	return out
}

func isStatic(shape ort.Shape) bool {
	if len(shape) == 0 {
		return false
	}
	for _, d := range shape {
		if d <= 0 {
			return false
		}
	}
	return true
}
