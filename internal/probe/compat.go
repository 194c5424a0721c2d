package probe

import "fmt"

// Mismatch is one stream parameter that differs from the first input.
type Mismatch struct {
	Path  string
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s is %q, first input has %q", m.Path, m.Field, m.Got, m.Want)
}

// Compare lists the parameters the concat demuxer's stream copy needs to
// match across inputs. It only reports; the engine decides whether the
// join fails.
func Compare(infos []*Info) []Mismatch {
	if len(infos) < 2 {
		return nil
	}
	ref := signature(infos[0])

	var out []Mismatch
	for _, info := range infos[1:] {
		sig := signature(info)
		for _, field := range signatureFields {
			if sig[field] != ref[field] {
				out = append(out, Mismatch{Path: info.Path, Field: field, Want: ref[field], Got: sig[field]})
			}
		}
	}
	return out
}

var signatureFields = []string{
	"format", "video_codec", "resolution", "pix_fmt", "frame_rate",
	"audio_codec", "sample_rate", "channels",
}

func signature(i *Info) map[string]string {
	sig := map[string]string{"format": i.Format.FormatName}
	if v := i.Video(); v != nil {
		sig["video_codec"] = v.CodecName
		sig["resolution"] = fmt.Sprintf("%dx%d", v.Width, v.Height)
		sig["pix_fmt"] = v.PixFmt
		sig["frame_rate"] = v.FrameRate
	}
	if a := i.Audio(); a != nil {
		sig["audio_codec"] = a.CodecName
		sig["sample_rate"] = a.SampleRate
		sig["channels"] = fmt.Sprint(a.Channels)
	}
	return sig
}
