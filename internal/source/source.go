package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI is used to rasterise vector logos.
const DefaultDPI = 300

// Source is a logo file that can be sized without being decoded.
type Source interface {
	Dimensions() (width, height int, err error)
	Render() (image.Image, error)
	Close() error
}

// Open picks a source by extension: documents go through MuPDF, anything
// else is decoded as a raster image.
func Open(path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".svg", ".xps", ".epub":
		return NewFitzSource(path, DefaultDPI)
	default:
		return NewImageSource(path), nil
	}
}

// FitzSource rasterises the first page of a document (PDF, SVG) via go-fitz.
type FitzSource struct {
	doc *fitz.Document
	dpi int
}

func NewFitzSource(path string, dpi int) (*FitzSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, fmt.Errorf("%s has no pages", path)
	}
	return &FitzSource{doc: doc, dpi: dpi}, nil
}

// Dimensions is the rendered size in pixels; page bounds are in points.
func (f *FitzSource) Dimensions() (int, int, error) {
	rect, err := f.doc.Bound(0)
	if err != nil {
		return 0, 0, err
	}
	return rect.Dx() * f.dpi / 72, rect.Dy() * f.dpi / 72, nil
}

func (f *FitzSource) Render() (image.Image, error) {
	return f.doc.ImageDPI(0, float64(f.dpi))
}

func (f *FitzSource) Close() error {
	return f.doc.Close()
}
