package processor

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
)

// InputKind classifies a document path.
type InputKind int

const (
	InputImage InputKind = iota
	InputPDF
)

func (k InputKind) String() string {
	if k == InputPDF {
		return "pdf"
	}
	return "image"
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
}

// ClassifyInput decides by file extension whether path is a PDF or a raster
// image.
func ClassifyInput(path string) (InputKind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return InputPDF, nil
	}
	if imageExtensions[ext] {
		return InputImage, nil
	}
	return InputImage, errors.NewUnsupportedFormatError(path, ext)
}

// PageImage is one page ready for preprocessing. Size is the geometry
// reported on the page's tokens.
type PageImage struct {
	Number int
	Image  image.Image
	Size   PageSize
}

// PageSource yields the pages of one document in order.
type PageSource interface {
	Kind() InputKind
	NumPages() int
	// Page returns the page at the zero-based index.
	Page(index int) (*PageImage, error)
	Close() error
}

// Loader opens documents as page sources.
type Loader interface {
	Open(path string) (PageSource, error)
}

// FileLoader opens raster images and PDFs from the local file system.
type FileLoader struct {
	// RasterDPI is the resolution PDF pages are rendered at.
	RasterDPI int
	// ExifRotate reports page geometry from the EXIF-oriented image.
	// Recognition still runs on the image as stored.
	ExifRotate bool
}

// NewFileLoader creates a loader; a non-positive dpi selects 300.
func NewFileLoader(dpi int, exifRotate bool) *FileLoader {
	if dpi <= 0 {
		dpi = 300
	}
	return &FileLoader{RasterDPI: dpi, ExifRotate: exifRotate}
}

// Open classifies path and returns the matching page source.
func (l *FileLoader) Open(path string) (PageSource, error) {
	kind, err := ClassifyInput(path)
	if err != nil {
		return nil, err
	}
	if kind == InputPDF {
		return openPDF(path, l.RasterDPI)
	}
	return openImage(path, l.ExifRotate)
}

type imageSource struct {
	img  image.Image
	size PageSize
}

func openImage(path string, exifRotate bool) (*imageSource, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.NewDecodeError(path, err)
	}
	src := &imageSource{img: img, size: sizeOf(img)}

	if exifRotate {
		oriented, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, errors.NewDecodeError(path, err)
		}
		src.size = sizeOf(oriented)
	}
	return src, nil
}

func (s *imageSource) Kind() InputKind { return InputImage }

func (s *imageSource) NumPages() int { return 1 }

func (s *imageSource) Page(index int) (*PageImage, error) {
	if index != 0 {
		return nil, fmt.Errorf("page index %d out of range for single image", index)
	}
	return &PageImage{Number: 1, Image: s.img, Size: s.size}, nil
}

func (s *imageSource) Close() error { return nil }

type pdfSource struct {
	path string
	doc  *fitz.Document
	dpi  float64
}

func openPDF(path string, dpi int) (*pdfSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, errors.NewDecodeError(path, err)
	}
	return &pdfSource{path: path, doc: doc, dpi: float64(dpi)}, nil
}

func (s *pdfSource) Kind() InputKind { return InputPDF }

func (s *pdfSource) NumPages() int { return s.doc.NumPage() }

func (s *pdfSource) Page(index int) (*PageImage, error) {
	img, err := s.doc.ImageDPI(index, s.dpi)
	if err != nil {
		return nil, errors.NewPageDecodeError(s.path, index+1, err)
	}
	return &PageImage{Number: index + 1, Image: img, Size: sizeOf(img)}, nil
}

func (s *pdfSource) Close() error { return s.doc.Close() }

func sizeOf(img image.Image) PageSize {
	b := img.Bounds()
	return PageSize{Width: b.Dx(), Height: b.Dy()}
}
