package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
)

// MixOptions configures background music mixing
type MixOptions struct {
	// Gain is the linear volume applied to the music before mixing (0.0-1.0).
	Gain       float64
	AudioCodec string
}

// MixBackground mixes music under the original audio of video. The video
// stream is copied; the result ends with the video's own audio.
func (e *Executor) MixBackground(ctx context.Context, video, music, output string, opts MixOptions) error {
	if opts.Gain < 0 || opts.Gain > 1 {
		return fmt.Errorf("gain %v out of range 0.0-1.0", opts.Gain)
	}

	e.logger.Info().
		Str("video", video).
		Str("music", music).
		Str("output", output).
		Float64("gain", opts.Gain).
		Msg("mixing background music")

	err := e.Run(ctx, RunOptions{
		Args:   MixArgs(video, music, output, opts),
		Output: output,
	})
	if err != nil {
		return fmt.Errorf("audio mix failed: %w", err)
	}
	return nil
}

// MixArgs builds the ffmpeg arguments for MixBackground (without the executor's base args).
func MixArgs(video, music, output string, opts MixOptions) []string {
	codec := opts.AudioCodec
	if codec == "" {
		codec = DefaultAudioCodec
	}

	graph := fmt.Sprintf(
		"[1:a]volume=%s[a1];[0:a][a1]amix=inputs=2:duration=first:dropout_transition=3[a]",
		strconv.FormatFloat(opts.Gain, 'f', -1, 64),
	)

	return []string{
		"-i", video,
		"-i", music,
		"-filter_complex", graph,
		"-map", "0:v",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", codec,
		"-shortest",
		output,
	}
}
