package video

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/qrcast/internal/effects"
	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/system"
)

// OverlayImage burns image into every frame of video at pos. Audio, if
// any, is copied.
func (e *FFmpegEncoder) OverlayImage(ctx context.Context, video, image media.Artifact, output string, pos effects.Position) (media.Artifact, error) {
	out, err := media.New(output, media.KindVideo)
	if err != nil {
		return media.Artifact{}, err
	}
	if err := requireInputs(video, image); err != nil {
		return media.Artifact{}, err
	}

	e.log.WithFields(logrus.Fields{
		"video": video.Path,
		"image": image.Path,
		"x":     pos.X,
		"y":     pos.Y,
	}).Info("overlaying image")

	if err := e.run(ctx, e.overlayArgs(video, image, out, pos), out); err != nil {
		return media.Artifact{}, err
	}

	e.log.WithField("output", out.Path).Info("image overlay complete")
	return out, nil
}

func (e *FFmpegEncoder) overlayArgs(video, image, out media.Artifact, pos effects.Position) []string {
	args := baseArgs()
	args = append(args,
		"-i", video.Path,
		"-i", image.Path,
		"-filter_complex", effects.Overlay(pos),
		"-map", effects.VideoOut,
		"-map", "0:a?",
		"-c:v", e.opts.VideoEncoder,
	)
	args = append(args, system.QualityArgs(e.opts.VideoEncoder, e.opts.Quality)...)
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		out.Path,
	)
	return args
}
