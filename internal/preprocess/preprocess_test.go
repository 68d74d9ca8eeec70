package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

// gradient draws a deterministic color pattern.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func TestResizeAlwaysYields28x28(t *testing.T) {
	sizes := []image.Point{{1, 1}, {5, 300}, {28, 28}, {640, 480}, {1000, 3}, {27, 29}}
	for _, sz := range sizes {
		out := Resize(gradient(sz.X, sz.Y), model.ImageSize)
		assert.Equal(t, model.ImageSize, out.Bounds().Dx(), "width for %v", sz)
		assert.Equal(t, model.ImageSize, out.Bounds().Dy(), "height for %v", sz)
	}
}

func TestTensorShapeAndRange(t *testing.T) {
	tensor, err := Tensor(gradient(120, 90))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 28, 28, 1}, []int64(tensor.Shape))
	require.Len(t, tensor.Data, 28*28)
	for _, v := range tensor.Data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestTensorIsDeterministic(t *testing.T) {
	img := gradient(333, 211)

	a, err := Tensor(img)
	require.NoError(t, err)
	b, err := Tensor(img)
	require.NoError(t, err)

	assert.Equal(t, a.Data, b.Data)
}

func TestInvertIsSelfInverse(t *testing.T) {
	gray := Grayscale(gradient(40, 40))
	twice := Invert(Invert(gray))
	assert.Equal(t, gray.Pix, twice.Pix)

	once := Invert(gray)
	assert.Equal(t, 255-gray.Pix[0], once.Pix[0])
}

func TestGrayscaleLuma(t *testing.T) {
	red := imaging.New(1, 1, color.NRGBA{R: 255, A: 255})
	g := Grayscale(red)
	assert.InDelta(t, 76, int(g.Pix[0]), 1)
	assert.Equal(t, g.Pix[0], g.Pix[1])
	assert.Equal(t, g.Pix[0], g.Pix[2])
}

func TestPolarity(t *testing.T) {
	// A white background becomes 0 after inversion, a black one 1.
	white, err := Tensor(imaging.New(64, 64, color.White))
	require.NoError(t, err)
	black, err := Tensor(imaging.New(64, 64, color.Black))
	require.NoError(t, err)

	for i := range white.Data {
		assert.InDelta(t, 0, white.Data[i], 1.0/255)
		assert.InDelta(t, 1, black.Data[i], 1.0/255)
	}
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(10, 6)))

	img, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())

	_, err = DecodeBytes([]byte("definitely not an image"))
	assert.ErrorIs(t, err, model.ErrDecode)

	_, err = DecodeBytes(nil)
	assert.ErrorIs(t, err, model.ErrDecode)
}

// declaredPNG encodes a 1x1 PNG, then rewrites its IHDR to claim w x h.
func declaredPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()

	// signature (8), chunk length (4), "IHDR" (4), then width and height
	require.Equal(t, "IHDR", string(data[12:16]))
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeRejectsHugeDeclaredSize(t *testing.T) {
	data := declaredPNG(t, 30000, 30000)
	require.Less(t, len(data), 1024)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Width)

	_, err = DecodeBytes(data)
	assert.ErrorIs(t, err, model.ErrDecode)
	assert.Contains(t, err.Error(), "30000x30000")
}

func TestEmptyImageFailsBeforeClassification(t *testing.T) {
	_, err := Tensor(nil)
	assert.ErrorIs(t, err, model.ErrDecode)

	_, err = Tensor(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, model.ErrDecode)
}
