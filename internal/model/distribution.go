package model

import (
	"fmt"
	"math"
)

// Distribution holds one score per class, positionally aligned with the labels.
type Distribution []float32

// Argmax returns the index of the highest score. Ties go to the lowest index.
func (d Distribution) Argmax() int {
	maxIdx := 0
	for i, v := range d {
		if v > d[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}

func (d Distribution) Sum() float32 {
	var sum float64
	for _, v := range d {
		sum += float64(v)
	}
	return float32(sum)
}

// Softmax maps raw scores to a distribution that sums to 1.
func Softmax(logits []float32) Distribution {
	out := make(Distribution, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v - maxVal))
		sum += exps[i]
	}
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}

// sumTolerance bounds how far a model's probabilities may drift from 1.
const sumTolerance = 1e-3

// ToDistribution copies raw model output into a Distribution, applying softmax
// to logits. Probabilities that do not sum to 1 are rejected.
func ToDistribution(output []float32, logits bool) (Distribution, error) {
	if logits {
		return Softmax(output), nil
	}

	dist := make(Distribution, len(output))
	copy(dist, output)
	for _, v := range dist {
		if v < 0 || math.IsNaN(float64(v)) {
			return nil, fmt.Errorf("%w: score %v is not a probability (set \"logits\": true for raw scores)",
				ErrShapeMismatch, v)
		}
	}
	if sum := dist.Sum(); math.Abs(float64(sum)-1) > sumTolerance {
		return nil, fmt.Errorf("%w: scores sum to %v, not 1 (set \"logits\": true for raw scores)",
			ErrShapeMismatch, sum)
	}
	return dist, nil
}

// NewPrediction resolves the winning class of dist against labels.
func NewPrediction(labels []string, dist Distribution) (*Prediction, error) {
	if len(dist) != len(labels) {
		return nil, fmt.Errorf("%w: %d scores for %d labels", ErrShapeMismatch, len(dist), len(labels))
	}

	maxIdx := dist.Argmax()
	predictions := make(map[string]float32, len(labels))
	for i, label := range labels {
		predictions[label] = dist[i]
	}

	return &Prediction{
		Index:        maxIdx,
		Class:        labels[maxIdx],
		Confidence:   dist[maxIdx],
		Predictions:  predictions,
		Distribution: dist,
		Labels:       labels,
	}, nil
}

// checkInput validates t against the expected input shape.
func checkInput(t Tensor, want []int64) error {
	if len(t.Shape) != len(want) {
		return fmt.Errorf("%w: got shape %v, want %v", ErrShapeMismatch, t.Shape, want)
	}
	for i := range want {
		if t.Shape[i] != want[i] {
			return fmt.Errorf("%w: got shape %v, want %v", ErrShapeMismatch, t.Shape, want)
		}
	}
	if int64(len(t.Data)) != t.Shape.FlattenedSize() {
		return fmt.Errorf("%w: shape %v needs %d values, got %d",
			ErrShapeMismatch, t.Shape, t.Shape.FlattenedSize(), len(t.Data))
	}
	return nil
}
