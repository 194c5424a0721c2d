package video

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/qrcast/internal/effects"
	"github.com/ivlev/qrcast/internal/media"
)

type NoAudioStreamError struct {
	Path string
}

func (e *NoAudioStreamError) Error() string {
	return fmt.Sprintf("%s has no audio stream to mix into", e.Path)
}

// MixAudio blends audio into video's own track; the video's track sets the
// duration.
func (e *FFmpegEncoder) MixAudio(ctx context.Context, video, audio media.Artifact, output string, gains effects.Gains) (media.Artifact, error) {
	out, err := media.New(output, media.KindVideo)
	if err != nil {
		return media.Artifact{}, err
	}
	if err := requireInputs(video, audio); err != nil {
		return media.Artifact{}, err
	}

	hasAudio, err := e.prober.HasAudio(ctx, video.Path)
	if err != nil {
		return media.Artifact{}, err
	}
	if !hasAudio {
		return media.Artifact{}, &NoAudioStreamError{Path: video.Path}
	}

	e.log.WithFields(logrus.Fields{
		"video":        video.Path,
		"audio":        audio.Path,
		"video_gain":   gains.Video,
		"overlay_gain": gains.Overlay,
	}).Info("mixing audio")

	if err := e.run(ctx, e.mixArgs(video, audio, out, gains), out); err != nil {
		return media.Artifact{}, err
	}

	e.log.WithField("output", out.Path).Info("audio mix complete")
	return out, nil
}

func (e *FFmpegEncoder) mixArgs(video, audio, out media.Artifact, gains effects.Gains) []string {
	args := baseArgs()
	args = append(args,
		"-i", video.Path,
		"-i", audio.Path,
		"-filter_complex", effects.Mix(gains),
		"-map", "0:v",
		"-map", effects.AudioOut,
		"-c:v", "copy",
		"-c:a", e.opts.AudioCodec,
	)
	if e.opts.AudioBitrate != "" {
		args = append(args, "-b:a", e.opts.AudioBitrate)
	}
	args = append(args, "-shortest", out.Path)
	return args
}
