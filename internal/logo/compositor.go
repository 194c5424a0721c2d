// Package logo embeds a logo in the middle of a rendered QR code.
//
// The logo is scaled down, never up, so its longest side is at most
// MaxPercent percent of the QR image's shorter side. It is centered with
// integer division and drawn over an opaque white backing, so transparent
// logo pixels never reveal QR modules underneath.
package logo

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// MaxPercent bounds the logo's longest side relative to min(qrW, qrH).
// Highest-tier error correction tolerates roughly 30% obstruction.
const MaxPercent = 20

// NotFoundError is returned when the logo file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("logo not found: %s", e.Path)
}

// InvalidError is returned when the logo degenerates to zero pixels once
// scaled, or cannot be decoded.
type InvalidError struct {
	Path   string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Path == "" {
		return "invalid logo: " + e.Reason
	}
	return fmt.Sprintf("invalid logo %s: %s", e.Path, e.Reason)
}

// Placement is the logo box inside the QR image.
type Placement struct {
	MaxSide int
	Box     image.Rectangle
}

// Place computes the scaled logo size and its centered box. qr is the QR
// image bounds, logo the original logo size.
func Place(qr image.Rectangle, logo image.Point) (Placement, error) {
	qrW, qrH := qr.Dx(), qr.Dy()
	maxSide := min(qrW, qrH) * MaxPercent / 100

	w, h := fit(logo.X, logo.Y, maxSide)
	if w <= 0 || h <= 0 {
		return Placement{MaxSide: maxSide}, &InvalidError{
			Reason: fmt.Sprintf("%dx%d logo scales to %dx%d inside %dx%d QR code", logo.X, logo.Y, w, h, qrW, qrH),
		}
	}

	x := qr.Min.X + (qrW-w)/2
	y := qr.Min.Y + (qrH-h)/2
	return Placement{
		MaxSide: maxSide,
		Box:     image.Rect(x, y, x+w, y+h),
	}, nil
}

// fit shrinks w x h to fit in a maxSide square, keeping the aspect ratio.
// The short side is rounded to the nearest pixel and may reach 0.
func fit(w, h, maxSide int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		return maxSide, (h*maxSide + w/2) / w
	}
	return (w*maxSide + h/2) / h, maxSide
}

// Composite returns a copy of qr with logo embedded at its center. The
// result has the same bounds as qr and is fully opaque inside the logo box.
func Composite(qr, logo image.Image) (*image.RGBA, error) {
	lb := logo.Bounds()
	p, err := Place(qr.Bounds(), lb.Size())
	if err != nil {
		return nil, err
	}

	out := image.NewRGBA(qr.Bounds())
	draw.Draw(out, out.Bounds(), qr, qr.Bounds().Min, draw.Src)

	scaled := image.NewRGBA(image.Rect(0, 0, p.Box.Dx(), p.Box.Dy()))
	if scaled.Bounds().Size() == lb.Size() {
		draw.Draw(scaled, scaled.Bounds(), logo, lb.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, lb, draw.Src, nil)
	}

	draw.Draw(out, p.Box, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, p.Box, scaled, image.Point{}, draw.Over)

	return out, nil
}
