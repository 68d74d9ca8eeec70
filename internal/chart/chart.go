// Package chart renders the prediction result: the uploaded picture with its
// caption next to a bar chart of the class scores.
package chart

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

const (
	Width  = 1200
	Height = 600
	panel  = Width / 2

	// plot area of the bar chart
	plotLeft   = panel + 60
	plotRight  = Width - 30
	plotTop    = 60
	plotBottom = 480
)

var (
	Background = color.RGBA{255, 255, 255, 255}
	BarGray    = color.RGBA{0x77, 0x77, 0x77, 255}
	Red        = color.RGBA{255, 0, 0, 255}
	Blue       = color.RGBA{0, 0, 255, 255}
	Neutral    = color.RGBA{0x33, 0x33, 0x33, 255}
	axisColor  = color.RGBA{0, 0, 0, 255}
)

var face = basicfont.Face7x13

// Render draws the two-panel result chart for pred.
func Render(original image.Image, pred *model.Prediction) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	drawPicture(canvas, original)
	drawCaption(canvas, pred)
	drawBars(canvas, pred)
	return canvas
}

// drawPicture fits the original into the left panel keeping its aspect ratio.
func drawPicture(canvas *image.RGBA, original image.Image) {
	if original == nil || original.Bounds().Empty() {
		return
	}
	area := image.Rect(40, 40, panel-40, Height-90)
	src := original.Bounds()

	scale := min(float64(area.Dx())/float64(src.Dx()), float64(area.Dy())/float64(src.Dy()))
	w := max(int(float64(src.Dx())*scale), 1)
	h := max(int(float64(src.Dy())*scale), 1)

	// Small inputs keep hard pixel edges when enlarged.
	interp := resize.Lanczos3
	if scale > 1 {
		interp = resize.NearestNeighbor
	}
	scaled := resize.Resize(uint(w), uint(h), original, interp)

	x := area.Min.X + (area.Dx()-w)/2
	y := area.Min.Y + (area.Dy()-h)/2
	draw.Draw(canvas, image.Rect(x, y, x+w, y+h), scaled, scaled.Bounds().Min, draw.Over)
}

// Caption returns the picture caption and its color. The expected class is only
// shown, and the color only signals correctness, when the caller supplied one.
func Caption(pred *model.Prediction) (string, color.Color) {
	text := fmt.Sprintf("%s %2.0f%%", pred.Class, 100*pred.Confidence)
	if pred.Expected == nil {
		return text, Neutral
	}

	expected := *pred.Expected
	text = fmt.Sprintf("%s (%s)", text, labelAt(pred.Labels, expected))
	if expected == pred.Index {
		return text, Blue
	}
	return text, Red
}

func drawCaption(canvas *image.RGBA, pred *model.Prediction) {
	text, col := Caption(pred)
	drawCentered(canvas, text, panel/2, Height-50, col)
}

// BarColors returns one color per class: gray, the predicted class red and the
// expected class blue. Blue wins when both point at the same class.
func BarColors(pred *model.Prediction) []color.Color {
	colors := make([]color.Color, len(pred.Distribution))
	for i := range colors {
		colors[i] = BarGray
	}
	if pred.Index < len(colors) {
		colors[pred.Index] = Red
	}
	if pred.Expected != nil && *pred.Expected >= 0 && *pred.Expected < len(colors) {
		colors[*pred.Expected] = Blue
	}
	return colors
}

func drawBars(canvas *image.RGBA, pred *model.Prediction) {
	n := len(pred.Distribution)
	if n == 0 {
		return
	}

	// y axis fixed at [0, 1]
	plotHeight := plotBottom - plotTop
	fill(canvas, image.Rect(plotLeft-1, plotTop, plotLeft, plotBottom+1), axisColor)
	fill(canvas, image.Rect(plotLeft-1, plotBottom, plotRight, plotBottom+1), axisColor)
	for _, tick := range []float64{0, 0.5, 1} {
		y := plotBottom - int(tick*float64(plotHeight))
		fill(canvas, image.Rect(plotLeft-5, y, plotLeft-1, y+1), axisColor)
		drawText(canvas, fmt.Sprintf("%.1f", tick), plotLeft-32, y+4, axisColor)
	}

	slot := (plotRight - plotLeft) / n
	barWidth := slot * 7 / 10
	colors := BarColors(pred)

	for i, p := range pred.Distribution {
		v := float64(p)
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}

		x0 := plotLeft + i*slot + (slot-barWidth)/2
		top := plotBottom - int(v*float64(plotHeight))
		fill(canvas, image.Rect(x0, top, x0+barWidth, plotBottom), colors[i])

		// Stagger names on two rows so long labels do not overlap.
		labelY := plotBottom + 18
		if i%2 == 1 {
			labelY += 16
		}
		drawCentered(canvas, labelAt(pred.Labels, i), x0+barWidth/2, labelY, axisColor)
	}
}

func labelAt(labels []string, i int) string {
	if i >= 0 && i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("#%d", i)
}

func fill(canvas *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(canvas, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(canvas *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawCentered(canvas *image.RGBA, text string, cx, y int, c color.Color) {
	width := font.MeasureString(face, text).Ceil()
	drawText(canvas, text, cx-width/2, y, c)
}

// WriteFile encodes img as PNG and moves it over path, so a concurrent reader
// sees either the previous chart or the new one.
func WriteFile(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".result-*.png")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace result: %w", err)
	}
	return nil
}
