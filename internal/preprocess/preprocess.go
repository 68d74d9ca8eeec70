// Package preprocess turns an uploaded photo into the 28x28 grayscale tensor the
// classifier was trained on.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

// BlurSigma matches a 7x7 Gaussian kernel with automatic sigma:
// 0.3*((7-1)*0.5-1) + 0.8.
const BlurSigma = 1.4

// MaxPixels caps the declared size of an upload. A small compressed file can
// declare dimensions that take gigabytes once decoded.
const MaxPixels = 50_000_000

// Decode reads an uploaded image. JPEG, PNG, GIF, BMP and TIFF are accepted and
// EXIF orientation is applied.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: image is %dx%d, limit is %d pixels",
			model.ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", model.ErrDecode)
	}
	return img, nil
}

// DecodeBytes is Decode for an in-memory upload.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", model.ErrDecode)
	}
	return Decode(bytes.NewReader(data))
}

func Smooth(img image.Image) *image.NRGBA {
	// imaging samples the Gaussian out to 3 sigma (11 taps), not a truncated 7x7
	// kernel; the outer taps carry under 2% of the weight.
	return imaging.Blur(img, BlurSigma)
}

// Grayscale keeps the NRGBA layout with R = G = B = luma.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// Resize scales to exactly size x size with box resampling, which averages every
// source pixel under each target pixel when shrinking.
func Resize(img image.Image, size int) *image.NRGBA {
	return imaging.Resize(img, size, size, imaging.Box)
}

// Invert complements every color channel (255 - v).
func Invert(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// Normalize maps the first channel of a grayscale image to [0,1], row-major.
func Normalize(gray *image.NRGBA) []float32 {
	b := gray.Bounds()
	out := make([]float32, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, float32(row[x*4])/255.0)
		}
	}
	return out
}

// Pixels runs the image steps (blur, grayscale, resize, invert) and returns the
// 28x28 grayscale image fed to the classifier.
func Pixels(img image.Image) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", model.ErrDecode)
	}

	smoothed := Smooth(img)
	gray := Grayscale(smoothed)
	small := Resize(gray, model.ImageSize)
	return Invert(small), nil
}

// Tensor converts img into a [1, 28, 28, 1] tensor with values in [0,1].
func Tensor(img image.Image) (model.Tensor, error) {
	inverted, err := Pixels(img)
	if err != nil {
		return model.Tensor{}, err
	}

	data := Normalize(inverted)
	shape := model.InputShape()
	if int64(len(data)) != shape.FlattenedSize() {
		return model.Tensor{}, fmt.Errorf("%w: preprocessing produced %d values, want %d",
			model.ErrShapeMismatch, len(data), shape.FlattenedSize())
	}
	return model.Tensor{Shape: shape, Data: data}, nil
}
