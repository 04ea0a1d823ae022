package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/clipsplit/internal/clips"
	"github.com/kikiluvv/clipsplit/internal/config"
	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
	"github.com/kikiluvv/clipsplit/internal/music"
	"github.com/kikiluvv/clipsplit/internal/overlays"
	"github.com/kikiluvv/clipsplit/internal/thumbnail"
	"github.com/kikiluvv/clipsplit/internal/timerange"
	"github.com/kikiluvv/clipsplit/pkg/util"
)

// NewDefault wires the pipeline to the real ffmpeg executor, music composer
// and thumbnail synthesizer. The external tools must answer -version before
// it returns.
func NewDefault(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	exec, err := ffmpeg.New(logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
		Timeout:     cfg.FFmpeg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	tools, err := exec.Check(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		logger.Debug().Str("tool", t.Name).Str("path", t.Path).Str("version", t.Version).Msg("external tool ready")
	}

	composer := music.NewComposer(logger, exec, exec, cfg.TempDir)
	thumbs := thumbnail.New(logger, cfg.FontDirs(), cfg.Thumbnail.MaxWidth)

	return New(logger, exec, composer, thumbs), nil
}

// OptionsFromConfig validates cfg and resolves it into run options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}

	r, err := timerange.Resolve(cfg.TrimStart, cfg.TrimEnd)
	if err != nil {
		return Options{}, err
	}

	videoTemplate := cfg.VideoName
	if videoTemplate == "" {
		videoTemplate = clips.DefaultVideoTemplate(util.Stem(cfg.Input))
	}

	var overlay *overlays.TextOverlay
	if cfg.Overlay.Top.Text != "" || cfg.Overlay.Bottom.Text != "" {
		overlay = &overlays.TextOverlay{
			Top:    overlays.Line{Text: cfg.Overlay.Top.Text, Font: cfg.Overlay.Top.Font},
			Bottom: overlays.Line{Text: cfg.Overlay.Bottom.Text, Font: cfg.Overlay.Bottom.Font},
			Window: cfg.Overlay.Window,
		}
	}

	return Options{
		Input:             cfg.Input,
		OutputDir:         cfg.OutputDir,
		Range:             r,
		ClipLength:        cfg.ClipLength,
		MusicDir:          cfg.Music.Dir,
		MusicFileName:     cfg.Music.FileName,
		Gain:              cfg.Music.Volume,
		VideoTemplate:     videoTemplate,
		ThumbnailTemplate: cfg.ThumbnailName,
		Retain:            cfg.RetainOutputs(),
		Overlay:           overlay,
		Transpose:         cfg.Transpose,
		ThumbnailFont:     cfg.Thumbnail.Font,
		FontDirs:          cfg.FontDirs(),
		Precise:           cfg.Precise,
		Encode: ffmpeg.EncodeOptions{
			CRF:    cfg.FFmpeg.CRF,
			Preset: cfg.FFmpeg.Preset,
		},
		Workers: cfg.Workers,
	}, nil
}
