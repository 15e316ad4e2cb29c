package processor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoToneImage(w, h int, left, right color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}

func TestPreprocess_GrayscaleOnly(t *testing.T) {
	img := twoToneImage(8, 4, color.Gray{Y: 40}, color.Gray{Y: 210})

	out := Preprocess(img, false)

	require.Equal(t, image.Rect(0, 0, 8, 4), out.Bounds())
	assert.Equal(t, uint8(40), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(210), out.GrayAt(7, 3).Y)
}

func TestPreprocess_Binarize(t *testing.T) {
	img := twoToneImage(10, 6, color.Gray{Y: 40}, color.Gray{Y: 210})

	out := Preprocess(img, true)

	for y := 0; y < 6; y++ {
		for x := 0; x < 10; x++ {
			want := uint8(255)
			if x < 5 {
				want = 0
			}
			assert.Equal(t, want, out.GrayAt(x, y).Y, "pixel %d,%d", x, y)
		}
	}
}

func TestPreprocess_NonZeroOrigin(t *testing.T) {
	img := twoToneImage(6, 6, color.Black, color.White).SubImage(image.Rect(2, 2, 6, 6))

	out := Preprocess(img, true)

	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(3, 3).Y)
}

func TestOtsuThreshold(t *testing.T) {
	var hist [256]int
	hist[30] = 100
	hist[31] = 50
	hist[200] = 80
	hist[220] = 70

	th := OtsuThreshold(hist)
	assert.GreaterOrEqual(t, th, uint8(31))
	assert.Less(t, th, uint8(200))
}

func TestOtsuThreshold_EmptyHistogram(t *testing.T) {
	assert.Equal(t, uint8(0), OtsuThreshold([256]int{}))
}
