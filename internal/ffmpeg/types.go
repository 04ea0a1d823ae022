package ffmpeg

import "time"

// Options configures an Executor.
type Options struct {
	// FFmpegPath and FFprobePath are binary names or paths; empty means look up
	// "ffmpeg" and "ffprobe" in PATH.
	FFmpegPath  string
	FFprobePath string
	Threads     int
	// Timeout bounds each external invocation; zero disables it.
	Timeout time.Duration
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Swapped returns the resolution with width and height exchanged.
func (r Resolution) Swapped() Resolution {
	return Resolution{Width: r.Height, Height: r.Width}
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	OutTime time.Duration
	Speed   string
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called once per progress block reported by ffmpeg.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args []string
	// Output, when set, must exist and be non-empty after a successful exit.
	Output          string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPixFmt     = "yuv420p"
)

// EncodeOptions selects the video encoder used when a stage must re-encode.
type EncodeOptions struct {
	VideoCodec string
	CRF        int
	Preset     string
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.VideoCodec == "" {
		o.VideoCodec = DefaultVideoCodec
	}
	if o.CRF == 0 {
		o.CRF = DefaultCRF
	}
	if o.Preset == "" {
		o.Preset = DefaultPreset
	}
	return o
}
