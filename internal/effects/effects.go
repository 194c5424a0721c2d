package effects

import (
	"fmt"
	"strconv"
	"strings"
)

// Stream labels shared by the filter graphs and the -map arguments.
const (
	VideoOut = "[vout]"
	AudioOut = "[aout]"
)

// Position places the overlay's top-left corner. X and Y are literal pixel
// offsets or ffmpeg expressions over main_w, main_h, overlay_w, overlay_h.
// Expressions are not validated here; ffmpeg reports malformed ones.
type Position struct {
	X string
	Y string
}

// Presets for the common corners, margin in pixels.
func TopRight(margin int) Position {
	return Position{X: fmt.Sprintf("main_w-overlay_w-%d", margin), Y: strconv.Itoa(margin)}
}

func TopLeft(margin int) Position {
	return Position{X: strconv.Itoa(margin), Y: strconv.Itoa(margin)}
}

func BottomRight(margin int) Position {
	return Position{X: fmt.Sprintf("main_w-overlay_w-%d", margin), Y: fmt.Sprintf("main_h-overlay_h-%d", margin)}
}

func BottomLeft(margin int) Position {
	return Position{X: strconv.Itoa(margin), Y: fmt.Sprintf("main_h-overlay_h-%d", margin)}
}

// Overlay draws input 1 (a single still frame, repeated) over every frame
// of input 0.
func Overlay(p Position) string {
	return fmt.Sprintf("[0:v][1:v]overlay=x=%s:y=%s%s", quote(p.X), quote(p.Y), VideoOut)
}

// Gains scales each track before mixing; 0 silences a track, 1 is unity.
// Values are passed through unclamped.
type Gains struct {
	Video   float64
	Overlay float64
}

// Mix scales input 0's and input 1's audio and mixes them. The first input
// sets the duration; the overlay track is cut or ends early to match.
func Mix(g Gains) string {
	return fmt.Sprintf(
		"[0:a]volume=%s[va];[1:a]volume=%s[oa];[va][oa]amix=inputs=2:duration=first:dropout_transition=1%s",
		formatGain(g.Video), formatGain(g.Overlay), AudioOut,
	)
}

func formatGain(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}

// quote wraps an option value in single quotes so commas and colons inside
// expressions survive filtergraph parsing. A literal quote is closed,
// escaped, and reopened.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
