package model

import (
	"errors"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrDecode is returned when an upload cannot be turned into an image.
	ErrDecode = errors.New("decode error")
	// ErrShapeMismatch is returned when a tensor does not match the classifier contract.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrModelLoad is returned when a classifier cannot be built at startup.
	ErrModelLoad = errors.New("model load failure")
)

const (
	// ImageSize is the side of the square grayscale input.
	ImageSize = 28
	// NumClasses is the number of clothing categories.
	NumClasses = 10
)

// DefaultLabels is the class table, aligned with the classifier output.
var DefaultLabels = []string{
	"Polera",
	"Pantalon",
	"Pullover",
	"Vestido",
	"Abrigo",
	"Sandalia",
	"Camisa",
	"Zapatilla",
	"Cartera",
	"Bota",
}

// InputShape is batch x height x width x channel.
func InputShape() ort.Shape {
	return ort.NewShape(1, ImageSize, ImageSize, 1)
}

// Classifier turns a preprocessed tensor into a class distribution.
type Classifier interface {
	Classify(t Tensor) (Distribution, error)
	Labels() []string
	Close()
}

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// Logits marks models without a final softmax layer.
	Logits bool `json:"logits"`
}

// Tensor is a dense float32 grid in row-major order.
type Tensor struct {
	Shape ort.Shape
	Data  []float32
}

type Prediction struct {
	ID          string             `json:"id"`
	Index       int                `json:"class_index"`
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
	Expected    *int               `json:"expected_index,omitempty"`

	Distribution Distribution `json:"-"`
	Labels       []string     `json:"-"`
}
