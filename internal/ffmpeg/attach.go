package ffmpeg

import (
	"context"
	"fmt"
)

// AttachThumbnail remuxes video with image added as an attached-picture
// stream. Nothing is re-encoded.
func (e *Executor) AttachThumbnail(ctx context.Context, video, image, output string) error {
	e.logger.Debug().
		Str("video", video).
		Str("thumbnail", image).
		Str("output", output).
		Msg("attaching thumbnail")

	err := e.Run(ctx, RunOptions{
		Args:   AttachArgs(video, image, output),
		Output: output,
	})
	if err != nil {
		return fmt.Errorf("thumbnail attach failed: %w", err)
	}
	return nil
}

// AttachArgs builds the ffmpeg arguments for AttachThumbnail (without the executor's base args).
func AttachArgs(video, image, output string) []string {
	return []string{
		"-i", video,
		"-i", image,
		"-map", "0",
		"-map", "1",
		"-c", "copy",
		"-disposition:v:1", "attached_pic",
		output,
	}
}
