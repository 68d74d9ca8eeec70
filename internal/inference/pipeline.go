// Package inference wires decoding, preprocessing, classification and chart
// rendering into the per-upload pipeline.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/clothing-classifier/internal/chart"
	"github.com/Brownie44l1/clothing-classifier/internal/model"
	"github.com/Brownie44l1/clothing-classifier/internal/preprocess"
)

// ErrUnknownClass is returned when the expected class names no known label.
var ErrUnknownClass = errors.New("unknown class")

// Classifier is the blocking classification step; *Worker implements it.
type Classifier interface {
	Classify(ctx context.Context, t model.Tensor) (model.Distribution, error)
	Labels() []string
}

type Pipeline struct {
	classifier Classifier
	ResultPath string
}

func NewPipeline(classifier Classifier, resultPath string) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		ResultPath: resultPath,
	}
}

// Run classifies one upload and overwrites the result chart. expected is an
// optional class name or index used only to color the chart.
func (p *Pipeline) Run(ctx context.Context, upload io.Reader, expected string) (*model.Prediction, error) {
	start := time.Now()
	labels := p.classifier.Labels()

	expectedIdx, err := ParseExpected(labels, expected)
	if err != nil {
		return nil, err
	}

	img, err := preprocess.Decode(upload)
	if err != nil {
		return nil, err
	}

	tensor, err := preprocess.Tensor(img)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}

	dist, err := p.classifier.Classify(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	pred, err := model.NewPrediction(labels, dist)
	if err != nil {
		return nil, err
	}
	pred.ID = uuid.NewString()
	pred.Expected = expectedIdx

	if err := chart.WriteFile(p.ResultPath, chart.Render(img, pred)); err != nil {
		return nil, fmt.Errorf("failed to write result chart: %w", err)
	}

	log.Info().
		Str("prediction_id", pred.ID).
		Str("class", pred.Class).
		Float32("confidence", pred.Confidence).
		Dur("took", time.Since(start)).
		Msg("Prediction complete")

	return pred, nil
}

// ParseExpected resolves a class given by index or by (case-insensitive) name.
// An empty string means no expected class.
func ParseExpected(labels []string, s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 || i >= len(labels) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrUnknownClass, i)
		}
		return &i, nil
	}

	for i, label := range labels {
		if strings.EqualFold(label, s) {
			return &i, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownClass, s)
}
