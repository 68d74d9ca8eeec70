package inference

import (
	"bytes"
	"context"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/clothing-classifier/internal/chart"
	"github.com/Brownie44l1/clothing-classifier/internal/model"
	"github.com/Brownie44l1/clothing-classifier/internal/preprocess"
)

func encodePNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG))
	return buf.Bytes()
}

func newTestPipeline(t *testing.T) (*Pipeline, *meanClassifier) {
	t.Helper()
	c := &meanClassifier{}
	w := NewWorker(c, 1)
	t.Cleanup(w.Stop)
	return NewPipeline(w, filepath.Join(t.TempDir(), "static", "result.png")), c
}

func TestPipelineMatchesClassifierArgmax(t *testing.T) {
	p, c := newTestPipeline(t)

	upload := encodePNG(t, color.Gray{Y: 90}, 64, 48)
	pred, err := p.Run(context.Background(), bytes.NewReader(upload), "")
	require.NoError(t, err)

	// Same tensor straight into the classifier.
	img, err := preprocess.DecodeBytes(upload)
	require.NoError(t, err)
	tensor, err := preprocess.Tensor(img)
	require.NoError(t, err)
	dist, err := c.Classify(tensor)
	require.NoError(t, err)

	assert.Equal(t, dist.Argmax(), pred.Index)
	assert.Equal(t, model.DefaultLabels[dist.Argmax()], pred.Class)
	assert.NotEmpty(t, pred.ID)
	assert.Nil(t, pred.Expected)

	written, err := imaging.Open(p.ResultPath)
	require.NoError(t, err)
	assert.Equal(t, chart.Width, written.Bounds().Dx())
}

func TestPipelineWithExpectedClass(t *testing.T) {
	p, _ := newTestPipeline(t)

	pred, err := p.Run(context.Background(), bytes.NewReader(encodePNG(t, color.White, 30, 30)), "bota")
	require.NoError(t, err)
	require.NotNil(t, pred.Expected)
	assert.Equal(t, 9, *pred.Expected)
}

func TestPipelineDecodeErrorShortCircuits(t *testing.T) {
	p, c := newTestPipeline(t)

	_, err := p.Run(context.Background(), strings.NewReader("GIF89a but not really"), "")
	assert.ErrorIs(t, err, model.ErrDecode)
	assert.Zero(t, c.calls.Load())
	assert.NoFileExists(t, p.ResultPath)
}

func TestPipelineRejectsUnknownExpectedClass(t *testing.T) {
	p, c := newTestPipeline(t)

	_, err := p.Run(context.Background(), bytes.NewReader(encodePNG(t, color.White, 8, 8)), "Sombrero")
	assert.ErrorIs(t, err, ErrUnknownClass)
	assert.Zero(t, c.calls.Load())
}

func TestParseExpected(t *testing.T) {
	tests := []struct {
		in   string
		want *int
		err  bool
	}{
		{in: "", want: nil},
		{in: "  ", want: nil},
		{in: "0", want: intPtr(0)},
		{in: "9", want: intPtr(9)},
		{in: "Camisa", want: intPtr(6)},
		{in: "zapatilla", want: intPtr(7)},
		{in: "10", err: true},
		{in: "-1", err: true},
		{in: "Gorro", err: true},
	}

	for _, tt := range tests {
		got, err := ParseExpected(model.DefaultLabels, tt.in)
		if tt.err {
			assert.ErrorIs(t, err, ErrUnknownClass, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func intPtr(i int) *int { return &i }
