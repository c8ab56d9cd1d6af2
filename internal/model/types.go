package model

import "fmt"

// SlotInfo describes one input or output of a model graph. Dynamic
// dimensions are reported as -1.
type SlotInfo struct {
	Name     string  `json:"name"`
	Shape    []int64 `json:"shape"`
	DataType string  `json:"data_type"`
}

// ModelInfo is what Inspect reports about a graph.
type ModelInfo struct {
	Path    string     `json:"path"`
	Inputs  []SlotInfo `json:"inputs"`
	Outputs []SlotInfo `json:"outputs"`
}

// ModelLoadError means the graph at Path could not be found, parsed or
// compiled into a session.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError means the session was built but running it failed.
type InferenceError struct {
	Path string
	Err  error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed for %s: %v", e.Path, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
