package processor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func TestNewTesseractOCR_Validation(t *testing.T) {
	_, err := NewTesseractOCR(nil)
	assert.Error(t, err)

	_, err = NewTesseractOCR(&TesseractConfig{})
	assert.ErrorContains(t, err, "language")

	ocr, err := NewTesseractOCR(&TesseractConfig{Languages: []string{"eng", "fra"}, PageSegMode: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"eng", "fra"}, ocr.Languages())
}

func TestMeanConfidence(t *testing.T) {
	assert.Equal(t, 0.0, meanConfidence(nil))
	assert.Equal(t, 0.0, meanConfidence([]OCRWord{{Confidence: NoConfidence}}))
	assert.InDelta(t, 85.0, meanConfidence([]OCRWord{
		{Confidence: 80}, {Confidence: NoConfidence}, {Confidence: 90},
	}), 1e-9)
}

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestTesseractOCR_RecognizeAndAlign(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 200, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 25),
	}
	d.DrawString("Hello token world")
	scaled := imaging.Resize(img, 800, 0, imaging.NearestNeighbor)

	ocr, err := NewTesseractOCR(&TesseractConfig{Languages: []string{"eng"}, PageSegMode: 6})
	require.NoError(t, err)

	pg, err := ocr.Recognize(context.Background(), Preprocess(scaled, true), nil)
	require.NoError(t, err)
	require.NotEmpty(t, pg.Text)
	require.NotEmpty(t, pg.Words)

	pg.PageNumber = 1
	aligned, err := Align(AlignState{}, pg, sizeOf(scaled), SkipUnlocated)
	require.NoError(t, err)
	assert.NotEmpty(t, aligned.Tokens)
	assertSpans(t, aligned.State.Text, aligned.Tokens)
}
