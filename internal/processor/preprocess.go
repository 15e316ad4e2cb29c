package processor

import (
	"image"

	"github.com/disintegration/imaging"
)

// Preprocess converts a page image to 8-bit grayscale and, when binarize is
// set, thresholds it with Otsu's method: pixels brighter than the threshold
// become white, everything else black.
func Preprocess(img image.Image, binarize bool) *image.Gray {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// imaging returns NRGBA with R == G == B.
	for y := 0; y < bounds.Dy(); y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+bounds.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+bounds.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}

	if !binarize {
		return out
	}

	threshold := OtsuThreshold(histogram(out))
	for i, v := range out.Pix {
		if v > threshold {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

func histogram(img *image.Gray) [256]int {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	return hist
}

// OtsuThreshold returns the gray level that maximizes the between-class
// variance of the histogram.
func OtsuThreshold(hist [256]int) uint8 {
	var total, sum float64
	for level, count := range hist {
		total += float64(count)
		sum += float64(level) * float64(count)
	}

	var (
		weightB, sumB float64
		best          float64
		threshold     int
	)
	for level := 0; level < 256; level++ {
		weightB += float64(hist[level])
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(level) * float64(hist[level])

		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF
		between := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = level
		}
	}
	return uint8(threshold)
}
