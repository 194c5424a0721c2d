package qr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"github.com/ivlev/qrcast/internal/logging"
	"github.com/ivlev/qrcast/internal/logo"
	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/source"
	"github.com/ivlev/qrcast/internal/workspace"
)

const (
	DefaultScale  = 8
	DefaultBorder = 4
)

// Spec is a QR encoding request. Error correction is always the highest
// tier so a centered logo stays decodable.
type Spec struct {
	Data   string
	Scale  int // pixels per module
	Border int // quiet zone, in modules
}

func NewSpec(data string) Spec {
	return Spec{Data: data, Scale: DefaultScale, Border: DefaultBorder}
}

func (s Spec) Validate() error {
	switch {
	case s.Data == "":
		return errors.New("qr: empty data")
	case s.Scale <= 0:
		return fmt.Errorf("qr: scale must be positive, got %d", s.Scale)
	case s.Border < 0:
		return fmt.Errorf("qr: border must not be negative, got %d", s.Border)
	}
	return nil
}

// Render encodes s and rasterises the module matrix, black on white, with
// the quiet zone included.
func Render(s Spec) (*image.RGBA, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	code, err := qrcode.New(s.Data, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	code.DisableBorder = true
	modules := code.Bitmap()

	size := (len(modules) + 2*s.Border) * s.Scale
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	black := image.NewUniform(color.Black)
	for y, row := range modules {
		for x, dark := range row {
			if !dark {
				continue
			}
			px := (x + s.Border) * s.Scale
			py := (y + s.Border) * s.Scale
			draw.Draw(img, image.Rect(px, py, px+s.Scale, py+s.Scale), black, image.Point{}, draw.Src)
		}
	}
	return img, nil
}

type Builder struct {
	log *logrus.Entry
}

func NewBuilder(log logrus.FieldLogger) *Builder {
	if log == nil {
		log = logging.Discard()
	}
	return &Builder{log: logging.Component(log, "qr")}
}

// Build writes the QR code for s to outputPath, with the logo at logoPath
// embedded when logoPath is not empty. Nothing is written until the logo
// has been checked, and a failed write leaves no file behind.
func (b *Builder) Build(s Spec, outputPath, logoPath string) (media.Artifact, error) {
	out, err := media.New(outputPath, media.KindImage)
	if err != nil {
		return media.Artifact{}, err
	}
	if err := s.Validate(); err != nil {
		return media.Artifact{}, err
	}
	if logoPath != "" {
		if _, err := os.Stat(logoPath); err != nil {
			if os.IsNotExist(err) {
				return media.Artifact{}, &logo.NotFoundError{Path: logoPath}
			}
			return media.Artifact{}, err
		}
	}

	b.log.WithField("url", s.Data).Info("generating QR code")
	img, err := Render(s)
	if err != nil {
		return media.Artifact{}, err
	}

	if logoPath != "" {
		b.log.WithField("logo", logoPath).Info("embedding logo")
		img, err = embedLogo(img, logoPath)
		if err != nil {
			return media.Artifact{}, err
		}
	}

	err = workspace.WriteFileAtomic(out.Path, func(w io.Writer) error {
		return png.Encode(w, img)
	})
	if err != nil {
		return media.Artifact{}, fmt.Errorf("write qr image: %w", err)
	}

	b.log.WithFields(logrus.Fields{
		"path": out.Path,
		"size": fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()),
	}).Info("QR code saved")
	return out, nil
}

// embedLogo sizes the logo from its header first, so a logo that would
// scale away to nothing is rejected without decoding it.
func embedLogo(qr *image.RGBA, path string) (*image.RGBA, error) {
	src, err := source.Open(path)
	if err != nil {
		return nil, &logo.InvalidError{Path: path, Reason: err.Error()}
	}
	defer src.Close()

	w, h, err := src.Dimensions()
	if err != nil {
		return nil, &logo.InvalidError{Path: path, Reason: err.Error()}
	}
	if _, err := logo.Place(qr.Bounds(), image.Pt(w, h)); err != nil {
		return nil, withPath(err, path)
	}

	logoImg, err := src.Render()
	if err != nil {
		return nil, &logo.InvalidError{Path: path, Reason: err.Error()}
	}
	out, err := logo.Composite(qr, logoImg)
	if err != nil {
		return nil, withPath(err, path)
	}
	return out, nil
}

func withPath(err error, path string) error {
	var invalid *logo.InvalidError
	if errors.As(err, &invalid) {
		invalid.Path = path
	}
	return err
}
