package system

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/ivlev/qrcast/internal/ffmpeg"
)

// CheckTools resolves every binary on PATH and returns their full paths in
// the same order.
func CheckTools(binaries ...string) ([]string, error) {
	resolved := make([]string, 0, len(binaries))
	for _, bin := range binaries {
		p, err := exec.LookPath(bin)
		if err != nil {
			return nil, fmt.Errorf("%s not found, install FFmpeg and make sure it is on PATH: %w", bin, err)
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// Hardware H.264 encoders in order of preference; libx264 is the fallback.
var hardwareEncoders = []string{"h264_videotoolbox", "h264_nvenc"}

const SoftwareEncoder = "libx264"

// BestH264Encoder asks ffmpeg which encoders it was built with and picks
// the first hardware one, or libx264. When ffmpeg cannot be asked it still
// returns libx264, together with the error.
func BestH264Encoder(ctx context.Context, runner ffmpeg.Runner) (string, error) {
	res, err := runner.Run(ctx, []string{"-hide_banner", "-encoders"})
	if err != nil {
		return SoftwareEncoder, fmt.Errorf("list encoders: %w", err)
	}
	for _, name := range hardwareEncoders {
		if strings.Contains(res.Stdout, name) {
			return name, nil
		}
	}
	return SoftwareEncoder, nil
}

// DefaultQuality is the per-encoder quality used when none is configured.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// QualityArgs maps one quality number onto the encoder's own rate control:
// bitrate for VideoToolbox (quality*100 kbit/s), -cq for NVENC, CRF for x264.
func QualityArgs(encoder string, quality int) []string {
	if quality <= 0 {
		quality = DefaultQuality(encoder)
	}
	switch encoder {
	case "h264_videotoolbox":
		return []string{"-b:v", strconv.Itoa(quality*100) + "k"}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	default:
		return []string{"-crf", strconv.Itoa(quality), "-preset", "medium"}
	}
}

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding dir.
func FreeSpace(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", dir, err)
	}
	return usage.Free, nil
}
