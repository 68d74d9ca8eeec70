package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Layer is one fully-connected layer exported from the trained network.
// Weights are indexed [output][input].
type Layer struct {
	Weights    [][]float32 `json:"weights"`
	Bias       []float32   `json:"bias"`
	Activation string      `json:"activation"`
}

// DenseWeights is the JSON export of a Flatten -> Dense ... -> Dense network.
type DenseWeights struct {
	Classes []string `json:"classes"`
	Layers  []Layer  `json:"layers"`
}

// Dense evaluates a fully-connected network in pure Go. It keeps no per-call
// state and is safe for concurrent use.
type Dense struct {
	labels []string
	layers []Layer
}

func LoadDense(path string) (*Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read weights: %v", ErrModelLoad, err)
	}

	var weights DenseWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("%w: failed to parse weights: %v", ErrModelLoad, err)
	}
	return NewDense(weights)
}

// NewDense validates that the layer sizes chain from the flattened image to one
// score per class.
func NewDense(w DenseWeights) (*Dense, error) {
	labels := w.Classes
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	if len(labels) != NumClasses {
		return nil, fmt.Errorf("%w: weights list %d classes, want %d", ErrModelLoad, len(labels), NumClasses)
	}
	if len(w.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrModelLoad)
	}

	in := int(InputShape().FlattenedSize())
	for i, l := range w.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return nil, fmt.Errorf("%w: layer %d has %d weight rows and %d biases",
				ErrModelLoad, i, len(l.Weights), len(l.Bias))
		}
		for j, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("%w: layer %d row %d has %d inputs, want %d",
					ErrModelLoad, i, j, len(row), in)
			}
		}
		switch l.Activation {
		case "relu", "softmax", "linear", "":
		default:
			return nil, fmt.Errorf("%w: layer %d has unknown activation %q", ErrModelLoad, i, l.Activation)
		}
		in = len(l.Weights)
	}
	if in != NumClasses {
		return nil, fmt.Errorf("%w: last layer has %d outputs, want %d", ErrModelLoad, in, NumClasses)
	}

	return &Dense{labels: labels, layers: w.Layers}, nil
}

func (d *Dense) Classify(t Tensor) (Distribution, error) {
	if err := checkInput(t, InputShape()); err != nil {
		return nil, err
	}

	x := t.Data
	last := ""
	for _, l := range d.layers {
		out := make([]float32, len(l.Weights))
		for o, row := range l.Weights {
			sum := l.Bias[o]
			for i, w := range row {
				sum += w * x[i]
			}
			out[o] = sum
		}

		switch l.Activation {
		case "relu":
			for i, v := range out {
				if v < 0 {
					out[i] = 0
				}
			}
		case "softmax":
			out = Softmax(out)
		}
		x = out
		last = l.Activation
	}

	if last == "softmax" {
		return Distribution(x), nil
	}
	return Softmax(x), nil
}

func (d *Dense) Labels() []string {
	return d.labels
}

func (d *Dense) Close() {}
