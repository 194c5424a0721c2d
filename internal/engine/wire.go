package engine

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/qrcast/internal/config"
	"github.com/ivlev/qrcast/internal/ffmpeg"
	"github.com/ivlev/qrcast/internal/logging"
	"github.com/ivlev/qrcast/internal/probe"
	"github.com/ivlev/qrcast/internal/qr"
	"github.com/ivlev/qrcast/internal/system"
	"github.com/ivlev/qrcast/internal/video"
)

// ResolveEncoder maps the configured encoder name onto a concrete one.
// "auto" asks ffmpeg for a hardware H.264 encoder and falls back to libx264.
func ResolveEncoder(ctx context.Context, name string, runner ffmpeg.Runner, log logrus.FieldLogger) string {
	if log == nil {
		log = logging.Discard()
	}
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "auto":
		encoder, err := system.BestH264Encoder(ctx, runner)
		if err != nil {
			log.WithError(err).WithField("encoder", encoder).Warn("encoder detection failed, using software encoder")
		}
		return encoder
	default:
		return name
	}
}

// NewFromConfig wires a Pipeline to the local ffmpeg and ffprobe binaries.
// When stderr is not nil, engine diagnostics are also streamed to it.
func NewFromConfig(cfg *config.Config, log logrus.FieldLogger, stderr io.Writer) *Pipeline {
	ff := ffmpeg.NewExec(cfg.FFmpegPath, log)
	ff.Tee = stderr
	prober := probe.NewProber(ffmpeg.NewExec(cfg.FFprobePath, log))

	encoder := video.NewFFmpegEncoder(ff, prober, video.Options{
		Quality:      cfg.Quality,
		AudioCodec:   cfg.AudioCodec,
		AudioBitrate: cfg.AudioBitrate,
	}, log)

	return New(cfg, Deps{
		QR:      qr.NewBuilder(log),
		Encoder: encoder,
		Prober:  prober,
		Tools:   []string{cfg.FFmpegPath, cfg.FFprobePath},
		SelectEncoder: func(ctx context.Context) string {
			name := ResolveEncoder(ctx, cfg.VideoEncoder, ff, log)
			encoder.SetVideoEncoder(name)
			return name
		},
	}, log)
}
