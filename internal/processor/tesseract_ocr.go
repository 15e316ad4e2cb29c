/**
 * Tesseract OCR - recognition adapter
 *
 * Runs Tesseract on one preprocessed page image and returns the full-text
 * transcription together with the per-word observations, both exactly as the
 * engine reports them.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Recognizer produces the full text and raw words for one page image.
// An empty languages slice selects the recognizer's configured default,
// which Languages reports.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, languages []string) (*OCRPage, error)
	Languages() []string
}

// TesseractOCR handles OCR using Tesseract
type TesseractOCR struct {
	languages      []string
	tessdataPrefix string
	pageSegMode    gosseract.PageSegMode
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages      []string
	TessdataPrefix string
	PageSegMode    int
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}

	return &TesseractOCR{
		languages:      append([]string(nil), cfg.Languages...),
		tessdataPrefix: cfg.TessdataPrefix,
		pageSegMode:    gosseract.PageSegMode(cfg.PageSegMode),
	}, nil
}

// Languages returns the default language set.
func (t *TesseractOCR) Languages() []string {
	return append([]string(nil), t.languages...)
}

// Recognize performs OCR using Tesseract. Engine errors are returned wrapped
// but otherwise unchanged.
func (t *TesseractOCR) Recognize(ctx context.Context, img image.Image, languages []string) (*OCRPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(languages) == 0 {
		languages = t.languages
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages %s: %w", strings.Join(languages, "+"), err)
	}
	if err := client.SetPageSegMode(t.pageSegMode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract word extraction failed: %w", err)
	}

	words := make([]OCRWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, OCRWord{
			Text:       b.Word,
			Confidence: b.Confidence,
			BoundingBox: BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
		})
	}

	return &OCRPage{
		Text:       text,
		Confidence: meanConfidence(words),
		Words:      words,
	}, nil
}

// meanConfidence averages the word confidences, ignoring the sentinel.
func meanConfidence(words []OCRWord) float64 {
	var sum float64
	n := 0
	for _, w := range words {
		if w.Confidence == NoConfidence {
			continue
		}
		sum += w.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
