package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ivlev/qrcast/internal/config"
	"github.com/ivlev/qrcast/internal/engine"
	"github.com/ivlev/qrcast/internal/ffmpeg"
	"github.com/ivlev/qrcast/internal/logging"
	"github.com/ivlev/qrcast/internal/report"
	"github.com/ivlev/qrcast/internal/video"
)

type options struct {
	configPath  string
	printConfig bool
	quiet       bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	flagCfg := config.Default()

	cmd := &cobra.Command{
		Use:   "qrcast",
		Short: "Stamp a QR code on a video, mix in a soundtrack and append a second video",
		Long: `qrcast runs one fixed job over an input directory:

  1. build a QR code for --url with the logo in its center
  2. overlay it on video1
  3. mix audio_overlay into video1's soundtrack
  4. append video2

Settings come from built-in defaults, then --config, then flags.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, flagCfg)
			if err != nil {
				return err
			}
			if opts.printConfig {
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return run(cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Job file (.yaml, .yml or .toml)")
	f.BoolVar(&opts.printConfig, "print-config", false, "Print the effective configuration and exit")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the stage summary")

	f.StringVar(&flagCfg.InputDir, "input-dir", flagCfg.InputDir, "Directory holding the input files")
	f.StringVar(&flagCfg.OutputDir, "output-dir", flagCfg.OutputDir, "Directory receiving every produced file")
	f.StringVar(&flagCfg.Video1, "video1", flagCfg.Video1, "First video, gets the QR code and the soundtrack")
	f.StringVar(&flagCfg.Video2, "video2", flagCfg.Video2, "Video appended at the end")
	f.StringVar(&flagCfg.AudioOverlay, "audio", flagCfg.AudioOverlay, "Soundtrack mixed into the first video")
	f.StringVar(&flagCfg.Logo, "logo", flagCfg.Logo, "Logo placed in the center of the QR code")
	f.StringVar(&flagCfg.FinalVideo, "final", flagCfg.FinalVideo, "Final output filename")
	f.StringVar(&flagCfg.URL, "url", flagCfg.URL, "Data encoded in the QR code")
	f.IntVar(&flagCfg.QRScale, "qr-scale", flagCfg.QRScale, "Pixels per QR module")
	f.IntVar(&flagCfg.QRBorder, "qr-border", flagCfg.QRBorder, "Quiet zone width in modules")
	f.StringVar(&flagCfg.OverlayX, "overlay-x", flagCfg.OverlayX, "Overlay x position, pixels or ffmpeg expression")
	f.StringVar(&flagCfg.OverlayY, "overlay-y", flagCfg.OverlayY, "Overlay y position, pixels or ffmpeg expression")
	f.Float64Var(&flagCfg.VideoGain, "video-gain", flagCfg.VideoGain, "Gain applied to the video's own audio")
	f.Float64Var(&flagCfg.OverlayGain, "overlay-gain", flagCfg.OverlayGain, "Gain applied to the soundtrack")
	f.StringVar(&flagCfg.VideoEncoder, "encoder", flagCfg.VideoEncoder, "H.264 encoder for the overlay pass, or auto")
	f.IntVar(&flagCfg.Quality, "quality", flagCfg.Quality, "Encoder quality, 0 picks the encoder default")
	f.StringVar(&flagCfg.AudioBitrate, "audio-bitrate", flagCfg.AudioBitrate, "Bitrate of the mixed audio track")
	f.BoolVar(&flagCfg.KeepArtifacts, "keep-intermediates", flagCfg.KeepArtifacts, "Keep the QR image and intermediate videos")
	f.StringVar(&flagCfg.FFmpegPath, "ffmpeg", flagCfg.FFmpegPath, "ffmpeg binary")
	f.StringVar(&flagCfg.FFprobePath, "ffprobe", flagCfg.FFprobePath, "ffprobe binary")
	f.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level: debug, info, warn, error")
	f.StringVar(&flagCfg.LogFormat, "log-format", flagCfg.LogFormat, "Log format: text or json")
	f.BoolVarP(&flagCfg.Verbose, "verbose", "v", flagCfg.Verbose, "Debug logging and ffmpeg output")

	return cmd
}

// flagFields copies one flag's value from the flag-backed config onto the
// effective one. Only flags the user set are applied, so job file values
// survive.
var flagFields = map[string]func(dst, src *config.Config){
	"input-dir":          func(d, s *config.Config) { d.InputDir = s.InputDir },
	"output-dir":         func(d, s *config.Config) { d.OutputDir = s.OutputDir },
	"video1":             func(d, s *config.Config) { d.Video1 = s.Video1 },
	"video2":             func(d, s *config.Config) { d.Video2 = s.Video2 },
	"audio":              func(d, s *config.Config) { d.AudioOverlay = s.AudioOverlay },
	"logo":               func(d, s *config.Config) { d.Logo = s.Logo },
	"final":              func(d, s *config.Config) { d.FinalVideo = s.FinalVideo },
	"url":                func(d, s *config.Config) { d.URL = s.URL },
	"qr-scale":           func(d, s *config.Config) { d.QRScale = s.QRScale },
	"qr-border":          func(d, s *config.Config) { d.QRBorder = s.QRBorder },
	"overlay-x":          func(d, s *config.Config) { d.OverlayX = s.OverlayX },
	"overlay-y":          func(d, s *config.Config) { d.OverlayY = s.OverlayY },
	"video-gain":         func(d, s *config.Config) { d.VideoGain = s.VideoGain },
	"overlay-gain":       func(d, s *config.Config) { d.OverlayGain = s.OverlayGain },
	"encoder":            func(d, s *config.Config) { d.VideoEncoder = s.VideoEncoder },
	"quality":            func(d, s *config.Config) { d.Quality = s.Quality },
	"audio-bitrate":      func(d, s *config.Config) { d.AudioBitrate = s.AudioBitrate },
	"keep-intermediates": func(d, s *config.Config) { d.KeepArtifacts = s.KeepArtifacts },
	"ffmpeg":             func(d, s *config.Config) { d.FFmpegPath = s.FFmpegPath },
	"ffprobe":            func(d, s *config.Config) { d.FFprobePath = s.FFprobePath },
	"log-level":          func(d, s *config.Config) { d.LogLevel = s.LogLevel },
	"log-format":         func(d, s *config.Config) { d.LogFormat = s.LogFormat },
	"verbose":            func(d, s *config.Config) { d.Verbose = s.Verbose },
}

func resolveConfig(cmd *cobra.Command, opts *options, flagCfg *config.Config) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for name, apply := range flagFields {
		if cmd.Flags().Changed(name) {
			apply(cfg, flagCfg)
		}
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg *config.Config, opts *options) error {
	log, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	var tee io.Writer
	if cfg.Verbose {
		w := log.WriterLevel(logrus.DebugLevel)
		defer w.Close()
		tee = w
	}

	ctx := cmd.Context()
	pipeline := engine.NewFromConfig(cfg, log, tee)
	rep, err := pipeline.Run(ctx)
	if !opts.quiet && len(rep.Stages) > 1 {
		report.Render(cmd.OutOrStdout(), rep)
	}
	return err
}

// describeFailure renders the failing stage and the engine's own
// diagnostic for the operator.
func describeFailure(err error) string {
	var stageErr *engine.StageError
	if !errors.As(err, &stageErr) {
		return fmt.Sprintf("qrcast: %v", err)
	}

	var concatErr *video.ConcatError
	if errors.As(err, &concatErr) {
		return fmt.Sprintf("qrcast: stage %s failed: %s", stageErr.Stage, concatErr.Error())
	}
	if engineErr, ok := ffmpeg.AsEngineError(err); ok {
		return fmt.Sprintf("qrcast: stage %s failed (%s exit code %d):\n%s",
			stageErr.Stage, engineErr.Binary, engineErr.ExitCode, engineErr.Diagnostic())
	}
	return fmt.Sprintf("qrcast: stage %s failed: %v", stageErr.Stage, stageErr.Err)
}
