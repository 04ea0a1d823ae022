package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kikiluvv/clipsplit/internal/config"
	"github.com/kikiluvv/clipsplit/internal/overlays"
)

// fontFlags registers --<prefix>-font, -font-size, -font-color and -bg-color.
type fontFlags struct {
	prefix string
}

func (f fontFlags) register(fs *pflag.FlagSet, what string) {
	fs.String(f.prefix+"-font", "", what+" font family or font file")
	fs.Int(f.prefix+"-font-size", 0, what+" font size")
	fs.String(f.prefix+"-font-color", "", what+" font color (#RRGGBB)")
	fs.String(f.prefix+"-bg-color", "", what+" background color (#RRGGBB)")
}

func (f fontFlags) apply(fs *pflag.FlagSet, spec *overlays.FontSpec) {
	if fs.Changed(f.prefix + "-font") {
		spec.Family, _ = fs.GetString(f.prefix + "-font")
	}
	if fs.Changed(f.prefix + "-font-size") {
		spec.Size, _ = fs.GetInt(f.prefix + "-font-size")
	}
	if fs.Changed(f.prefix + "-font-color") {
		spec.Color, _ = fs.GetString(f.prefix + "-font-color")
	}
	if fs.Changed(f.prefix + "-bg-color") {
		spec.Background, _ = fs.GetString(f.prefix + "-bg-color")
	}
}

var (
	thumbFontFlags  = fontFlags{prefix: "thumb"}
	topFontFlags    = fontFlags{prefix: "top"}
	bottomFontFlags = fontFlags{prefix: "bottom"}
)

func registerSplitFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("input", "i", "", "input video (alternative to the positional argument)")
	fs.StringP("output-dir", "o", "", "directory for clips and intermediates")
	fs.String("music-dir", "", "directory of background music tracks")
	fs.String("music-file-name", "", "base name for the combined music file")
	fs.Float64("bg-volume", 0, "background music gain (0.0-1.0)")
	fs.Float64("clip-length", 0, "segment length in seconds")
	fs.String("trim-start", "", "trim start (HH:MM:SS)")
	fs.String("trim-end", "", "trim end (HH:MM:SS)")
	fs.String("video-name", "", "clip naming template; $part is replaced by the segment number")
	fs.String("thumbnail-name", "", "thumbnail naming template; $part is replaced by the segment number")
	fs.String("top-text", "", "text burned in at the top of each clip")
	fs.String("bottom-text", "", "text burned in at the bottom of each clip")
	fs.Int("transpose", 0, "ffmpeg transpose code (0-3)")
	fs.Int("workers", 0, "segments processed in parallel")
	fs.Bool("precise", false, "re-encode video for frame-accurate cuts")
	fs.Bool("retain", false, "keep clips and intermediates (default: only with --video-name)")

	thumbFontFlags.register(fs, "thumbnail")
	topFontFlags.register(fs, "top text")
	bottomFontFlags.register(fs, "bottom text")
}

// applySplitFlags overlays explicitly set flags onto cfg.
func applySplitFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	fs := cmd.Flags()

	if len(args) == 1 {
		cfg.Input = args[0]
	}
	if fs.Changed("input") {
		cfg.Input, _ = fs.GetString("input")
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir, _ = fs.GetString("output-dir")
	}
	if fs.Changed("music-dir") {
		cfg.Music.Dir, _ = fs.GetString("music-dir")
	}
	if fs.Changed("music-file-name") {
		cfg.Music.FileName, _ = fs.GetString("music-file-name")
	}
	if fs.Changed("bg-volume") {
		cfg.Music.Volume, _ = fs.GetFloat64("bg-volume")
	}
	if fs.Changed("clip-length") {
		cfg.ClipLength, _ = fs.GetFloat64("clip-length")
	}
	if fs.Changed("trim-start") {
		cfg.TrimStart, _ = fs.GetString("trim-start")
	}
	if fs.Changed("trim-end") {
		cfg.TrimEnd, _ = fs.GetString("trim-end")
	}
	if fs.Changed("video-name") {
		cfg.VideoName, _ = fs.GetString("video-name")
	}
	if fs.Changed("thumbnail-name") {
		cfg.ThumbnailName, _ = fs.GetString("thumbnail-name")
	}
	if fs.Changed("top-text") {
		cfg.Overlay.Top.Text, _ = fs.GetString("top-text")
	}
	if fs.Changed("bottom-text") {
		cfg.Overlay.Bottom.Text, _ = fs.GetString("bottom-text")
	}
	if fs.Changed("transpose") {
		code, _ := fs.GetInt("transpose")
		cfg.Transpose = &code
	}
	if fs.Changed("workers") {
		cfg.Workers, _ = fs.GetInt("workers")
	}
	if fs.Changed("precise") {
		cfg.Precise, _ = fs.GetBool("precise")
	}
	if fs.Changed("retain") {
		retain, _ := fs.GetBool("retain")
		cfg.Retain = &retain
	}

	thumbFontFlags.apply(fs, &cfg.Thumbnail.Font)
	topFontFlags.apply(fs, &cfg.Overlay.Top.Font)
	bottomFontFlags.apply(fs, &cfg.Overlay.Bottom.Font)
}
