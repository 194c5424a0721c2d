package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/qrcast/internal/ffmpeg"
)

type Stream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	PixFmt     string `json:"pix_fmt,omitempty"`
	FrameRate  string `json:"r_frame_rate,omitempty"`
	SampleRate string `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

type Format struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// Info is the subset of `ffprobe -show_streams -show_format` the pipeline
// reads.
type Info struct {
	Path    string   `json:"-"`
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// HasAudio reports whether at least one audio stream is present.
func (i *Info) HasAudio() bool {
	return i.first("audio") != nil
}

func (i *Info) Video() *Stream { return i.first("video") }
func (i *Info) Audio() *Stream { return i.first("audio") }

func (i *Info) first(codecType string) *Stream {
	for k := range i.Streams {
		if i.Streams[k].CodecType == codecType {
			return &i.Streams[k]
		}
	}
	return nil
}

// Duration is the container duration in seconds, 0 when unknown.
func (i *Info) Duration() float64 {
	d, err := strconv.ParseFloat(i.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// Prober runs ffprobe through a Runner.
type Prober struct {
	runner ffmpeg.Runner
	// Parallel bounds ProbeAll; 0 means one ffprobe per path.
	Parallel int
}

func NewProber(runner ffmpeg.Runner) *Prober {
	return &Prober{runner: runner, Parallel: 4}
}

func (p *Prober) Probe(ctx context.Context, path string) (*Info, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
	res, err := p.runner.Run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	info, err := Parse([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	info.Path = path
	return info, nil
}

// HasAudio probes path for an audio stream.
func (p *Prober) HasAudio(ctx context.Context, path string) (bool, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	return info.HasAudio(), nil
}

// ProbeAll probes paths concurrently and returns results in input order.
// The first failure cancels the remaining probes.
func (p *Prober) ProbeAll(ctx context.Context, paths []string) ([]*Info, error) {
	infos := make([]*Info, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if p.Parallel > 0 {
		g.SetLimit(p.Parallel)
	}
	for i, path := range paths {
		g.Go(func() error {
			info, err := p.Probe(ctx, path)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

func Parse(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &info, nil
}
