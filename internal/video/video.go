package video

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/qrcast/internal/effects"
	"github.com/ivlev/qrcast/internal/ffmpeg"
	"github.com/ivlev/qrcast/internal/logging"
	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/system"
)

// Encoder writes exactly one output file per call.
type Encoder interface {
	OverlayImage(ctx context.Context, video, image media.Artifact, output string, pos effects.Position) (media.Artifact, error)
	MixAudio(ctx context.Context, video, audio media.Artifact, output string, gains effects.Gains) (media.Artifact, error)
	Concatenate(ctx context.Context, inputs []media.Artifact, output string) (media.Artifact, error)
}

type AudioProber interface {
	HasAudio(ctx context.Context, path string) (bool, error)
}

type Options struct {
	VideoEncoder string
	Quality      int
	AudioCodec   string
	AudioBitrate string
}

func (o Options) withDefaults() Options {
	if o.VideoEncoder == "" {
		o.VideoEncoder = system.SoftwareEncoder
	}
	if o.AudioCodec == "" {
		o.AudioCodec = "aac"
	}
	return o
}

type FFmpegEncoder struct {
	runner ffmpeg.Runner
	prober AudioProber
	opts   Options
	log    *logrus.Entry
}

func NewFFmpegEncoder(runner ffmpeg.Runner, prober AudioProber, opts Options, log logrus.FieldLogger) *FFmpegEncoder {
	if log == nil {
		log = logging.Discard()
	}
	return &FFmpegEncoder{
		runner: runner,
		prober: prober,
		opts:   opts.withDefaults(),
		log:    logging.Component(log, "video"),
	}
}

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y"}
}

func (e *FFmpegEncoder) run(ctx context.Context, args []string, out media.Artifact) error {
	if _, err := e.runner.Run(ctx, args); err != nil {
		return err
	}
	if err := out.Require(); err != nil {
		return fmt.Errorf("engine reported success but produced no output: %w", err)
	}
	return nil
}

// SetVideoEncoder switches the encoder used by later re-encoding stages.
func (e *FFmpegEncoder) SetVideoEncoder(name string) {
	if name != "" {
		e.opts.VideoEncoder = name
	}
}

func requireInputs(inputs ...media.Artifact) error {
	for _, in := range inputs {
		if err := in.Require(); err != nil {
			return err
		}
	}
	return nil
}
