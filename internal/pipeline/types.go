package pipeline

import (
	"context"
	"fmt"

	"github.com/kikiluvv/clipsplit/internal/clips"
	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
	"github.com/kikiluvv/clipsplit/internal/overlays"
	"github.com/kikiluvv/clipsplit/internal/timerange"
)

// State is the orchestrator's position in a run
type State int

const (
	StateInit State = iota
	StateProbed
	StateTrimmed
	StateMusicComposed
	StateMixed
	StateSegmenting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateProbed:
		return "probed"
	case StateTrimmed:
		return "trimmed"
	case StateMusicComposed:
		return "music-composed"
	case StateMixed:
		return "mixed"
	case StateSegmenting:
		return "segmenting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stage names the step that failed
type Stage string

const (
	StageProbe     Stage = "probe"
	StageTrim      Stage = "trim"
	StageCompose   Stage = "compose-music"
	StageMix       Stage = "mix"
	StagePlan      Stage = "plan"
	StageSplit     Stage = "split"
	StageThumbnail Stage = "thumbnail"
	StageAttach    Stage = "attach"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	// Segment is the 1-based segment index for per-segment stages, else 0.
	Segment int
	Err     error
}

func (e *StageError) Error() string {
	if e.Segment > 0 {
		return fmt.Sprintf("%s: segment %d: %v", e.Stage, e.Segment, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Media is the external tool surface the pipeline drives
type Media interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ProbeResolution(ctx context.Context, path string) (ffmpeg.Resolution, error)
	Trim(ctx context.Context, input, output string, opts ffmpeg.TrimOptions) error
	MixBackground(ctx context.Context, video, music, output string, opts ffmpeg.MixOptions) error
	Split(ctx context.Context, input, output string, opts ffmpeg.SplitOptions) error
	AttachThumbnail(ctx context.Context, video, image, output string) error
}

// Composer builds the background music track
type Composer interface {
	Compose(ctx context.Context, dir string, target float64, outputBase string) (string, error)
}

// Thumbnailer renders a label image
type Thumbnailer interface {
	Synthesize(text string, width, height int, spec overlays.FontSpec, output string) error
}

// Options is the resolved, immutable input to one run
type Options struct {
	Input     string
	OutputDir string

	Range      timerange.TimeRange
	ClipLength float64

	MusicDir      string
	MusicFileName string
	Gain          float64

	VideoTemplate     string
	ThumbnailTemplate string
	Retain            bool

	Overlay       *overlays.TextOverlay
	Transpose     *int
	ThumbnailFont overlays.FontSpec
	FontDirs      []string

	Precise bool
	Encode  ffmpeg.EncodeOptions
	Workers int
}

// Result describes a completed run
type Result struct {
	RunID    string
	Duration float64
	Segments []clips.Segment
	// Music is the composed background track, empty when none was mixed.
	Music string
	// Retained reports whether the final clips were kept on disk.
	Retained bool
}

// Finals returns the deliverable clip paths.
func (r *Result) Finals() []string {
	finals := make([]string, len(r.Segments))
	for i, s := range r.Segments {
		finals[i] = s.FinalPath
	}
	return finals
}
