package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Config holds every path and parameter of a single pipeline run.
type Config struct {
	InputDir  string `yaml:"input_dir" toml:"input_dir"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`

	// Input filenames, relative to InputDir unless absolute.
	Video1       string `yaml:"video1" toml:"video1"`
	Video2       string `yaml:"video2" toml:"video2"`
	AudioOverlay string `yaml:"audio_overlay" toml:"audio_overlay"`
	Logo         string `yaml:"logo" toml:"logo"`

	// Output and intermediate filenames, relative to OutputDir unless absolute.
	QRImage        string `yaml:"qr_image" toml:"qr_image"`
	OverlayVideo   string `yaml:"overlay_video" toml:"overlay_video"`
	MixedVideo     string `yaml:"mixed_video" toml:"mixed_video"`
	FinalVideo     string `yaml:"final_video" toml:"final_video"`
	ReportFile     string `yaml:"report_file" toml:"report_file"`
	KeepArtifacts  bool   `yaml:"keep_intermediates" toml:"keep_intermediates"`
	MinFreeSpaceMB uint64 `yaml:"min_free_space_mb" toml:"min_free_space_mb"`

	URL      string `yaml:"url" toml:"url"`
	QRScale  int    `yaml:"qr_scale" toml:"qr_scale"`
	QRBorder int    `yaml:"qr_border" toml:"qr_border"`

	// ffmpeg overlay expressions, e.g. main_w-overlay_w-10.
	OverlayX string `yaml:"overlay_x" toml:"overlay_x"`
	OverlayY string `yaml:"overlay_y" toml:"overlay_y"`

	VideoGain   float64 `yaml:"video_gain" toml:"video_gain"`
	OverlayGain float64 `yaml:"overlay_gain" toml:"overlay_gain"`

	VideoEncoder string `yaml:"video_encoder" toml:"video_encoder"` // libx264, h264_nvenc, h264_videotoolbox or auto
	Quality      int    `yaml:"quality" toml:"quality"`             // 0 picks a per-encoder default
	AudioCodec   string `yaml:"audio_codec" toml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate" toml:"audio_bitrate"`

	FFmpegPath  string `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" toml:"ffprobe_path"`

	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
	Verbose   bool   `yaml:"verbose" toml:"verbose"`
}

// Default returns the stock job: two chapters, one soundtrack and a logo
// under input/, everything produced under output/.
func Default() *Config {
	return &Config{
		InputDir:       "input",
		OutputDir:      "output",
		Video1:         "ch1.mp4",
		Video2:         "ch2.mp4",
		AudioOverlay:   "target.m4a",
		Logo:           "img.jpg",
		QRImage:        "qr_code_with_logo.png",
		OverlayVideo:   "intermediate_1_qr.mp4",
		MixedVideo:     "intermediate_2_audio.mp4",
		FinalVideo:     "final_output.mp4",
		ReportFile:     "run_report.yaml",
		KeepArtifacts:  true,
		MinFreeSpaceMB: 512,
		URL:            "https://example.com",
		QRScale:        10,
		QRBorder:       4,
		OverlayX:       "main_w-overlay_w-10",
		OverlayY:       "10",
		VideoGain:      1.0,
		OverlayGain:    0.8,
		VideoEncoder:   "libx264",
		AudioCodec:     "aac",
		AudioBitrate:   "192k",
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Input is one named file the run cannot start without.
type Input struct {
	Role string
	Path string
}

// Inputs lists the required inputs in validation order.
func (c *Config) Inputs() []Input {
	return []Input{
		{Role: "video1", Path: c.Video1Path()},
		{Role: "video2", Path: c.Video2Path()},
		{Role: "audio_overlay", Path: c.AudioPath()},
		{Role: "logo", Path: c.LogoPath()},
	}
}

func (c *Config) Video1Path() string { return join(c.InputDir, c.Video1) }
func (c *Config) Video2Path() string { return join(c.InputDir, c.Video2) }
func (c *Config) AudioPath() string  { return join(c.InputDir, c.AudioOverlay) }
func (c *Config) LogoPath() string   { return join(c.InputDir, c.Logo) }

func (c *Config) QRImagePath() string      { return join(c.OutputDir, c.QRImage) }
func (c *Config) OverlayVideoPath() string { return join(c.OutputDir, c.OverlayVideo) }
func (c *Config) MixedVideoPath() string   { return join(c.OutputDir, c.MixedVideo) }
func (c *Config) FinalVideoPath() string   { return join(c.OutputDir, c.FinalVideo) }

// ReportPath is empty when the report is disabled.
func (c *Config) ReportPath() string {
	if strings.TrimSpace(c.ReportFile) == "" {
		return ""
	}
	return join(c.OutputDir, c.ReportFile)
}

func join(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"input_dir":     c.InputDir,
		"output_dir":    c.OutputDir,
		"video1":        c.Video1,
		"video2":        c.Video2,
		"audio_overlay": c.AudioOverlay,
		"logo":          c.Logo,
		"qr_image":      c.QRImage,
		"overlay_video": c.OverlayVideo,
		"mixed_video":   c.MixedVideo,
		"final_video":   c.FinalVideo,
		"url":           c.URL,
		"overlay_x":     c.OverlayX,
		"overlay_y":     c.OverlayY,
		"ffmpeg_path":   c.FFmpegPath,
		"ffprobe_path":  c.FFprobePath,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}

	if c.QRScale <= 0 {
		errs = append(errs, fmt.Errorf("qr_scale must be positive, got %d", c.QRScale))
	}
	if c.QRBorder < 0 {
		errs = append(errs, fmt.Errorf("qr_border must not be negative, got %d", c.QRBorder))
	}
	if c.VideoGain < 0 || math.IsNaN(c.VideoGain) {
		errs = append(errs, fmt.Errorf("video_gain must be >= 0, got %v", c.VideoGain))
	}
	if c.OverlayGain < 0 || math.IsNaN(c.OverlayGain) {
		errs = append(errs, fmt.Errorf("overlay_gain must be >= 0, got %v", c.OverlayGain))
	}
	if c.Quality < 0 {
		errs = append(errs, fmt.Errorf("quality must not be negative, got %d", c.Quality))
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unsupported value %q", c.LogFormat))
	}

	return errors.Join(errs...)
}
