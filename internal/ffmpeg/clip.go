package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kikiluvv/clipsplit/pkg/util"
)

// TrimOptions defines the window copied out of the source
type TrimOptions struct {
	Start float64
	// Duration is nil to trim to end of file.
	Duration *float64
	// Precise re-encodes video so the cut lands on the requested frame
	// instead of the preceding keyframe.
	Precise bool
	Encode  EncodeOptions
}

// SplitOptions defines one segment cut
type SplitOptions struct {
	Start  float64
	Length float64
	// Filters is a video filter chain. A non-empty chain forces a video
	// re-encode for this segment; audio is always copied.
	Filters []string
	Precise bool
	Encode  EncodeOptions
}

// Trim writes output holding only the requested window of input
func (e *Executor) Trim(ctx context.Context, input, output string, opts TrimOptions) error {
	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Float64("start", opts.Start).
		Bool("bounded", opts.Duration != nil).
		Bool("precise", opts.Precise).
		Msg("trimming source")

	err := e.Run(ctx, RunOptions{
		Args:   TrimArgs(input, output, opts),
		Output: output,
	})
	if err != nil {
		return fmt.Errorf("trim failed: %w", err)
	}
	return nil
}

// Split cuts one segment of input starting at opts.Start
func (e *Executor) Split(ctx context.Context, input, output string, opts SplitOptions) error {
	if opts.Length <= 0 {
		return fmt.Errorf("invalid segment length %v: must be positive", opts.Length)
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", output).
		Float64("start", opts.Start).
		Float64("length", opts.Length).
		Int("filters", len(opts.Filters)).
		Msg("splitting segment")

	err := e.Run(ctx, RunOptions{
		Args:   SplitArgs(input, output, opts),
		Output: output,
	})
	if err != nil {
		return fmt.Errorf("segment split failed: %w", err)
	}
	return nil
}

// TrimArgs builds the ffmpeg arguments for Trim (without the executor's base args).
func TrimArgs(input, output string, opts TrimOptions) []string {
	args := []string{"-ss", util.FormatSeconds(opts.Start), "-i", input}
	if opts.Duration != nil {
		args = append(args, "-t", util.FormatSeconds(*opts.Duration))
	}

	if opts.Precise {
		args = append(args, encodeVideoArgs(opts.Encode)...)
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c", "copy")
	}

	return append(args, output)
}

// SplitArgs builds the ffmpeg arguments for Split (without the executor's base args).
func SplitArgs(input, output string, opts SplitOptions) []string {
	args := []string{
		"-ss", util.FormatSeconds(opts.Start),
		"-i", input,
		"-t", util.FormatSeconds(opts.Length),
	}

	switch {
	case len(opts.Filters) > 0:
		args = append(args, "-vf", strings.Join(opts.Filters, ","))
		args = append(args, encodeVideoArgs(opts.Encode)...)
		args = append(args, "-c:a", "copy")
	case opts.Precise:
		args = append(args, encodeVideoArgs(opts.Encode)...)
		args = append(args, "-c:a", "copy")
	default:
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	}

	return append(args, output)
}

func encodeVideoArgs(opts EncodeOptions) []string {
	opts = opts.withDefaults()
	return []string{
		"-c:v", opts.VideoCodec,
		"-crf", strconv.Itoa(opts.CRF),
		"-preset", opts.Preset,
		"-pix_fmt", DefaultPixFmt,
	}
}
