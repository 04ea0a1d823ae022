package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/clipsplit/internal/overlays"
	"github.com/kikiluvv/clipsplit/internal/timerange"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	Input     string `yaml:"input,omitempty" toml:"input,omitempty"`
	OutputDir string `yaml:"output_dir" toml:"output_dir" validate:"required"`
	TempDir   string `yaml:"temp_dir,omitempty" toml:"temp_dir,omitempty"`
	Workers   int    `yaml:"workers" toml:"workers" validate:"gte=1,lte=32"`

	// Segmentation
	ClipLength float64 `yaml:"clip_length" toml:"clip_length" validate:"gt=0"`
	TrimStart  string  `yaml:"trim_start" toml:"trim_start" validate:"omitempty,timecode"`
	TrimEnd    string  `yaml:"trim_end,omitempty" toml:"trim_end,omitempty" validate:"omitempty,timecode"`
	Precise    bool    `yaml:"precise" toml:"precise"`
	Transpose  *int    `yaml:"transpose,omitempty" toml:"transpose,omitempty" validate:"omitempty,gte=0,lte=3"`

	// Naming
	VideoName     string `yaml:"video_name,omitempty" toml:"video_name,omitempty"`
	ThumbnailName string `yaml:"thumbnail_name,omitempty" toml:"thumbnail_name,omitempty"`
	// Retain keeps final clips and intermediates. Unset means keep only when
	// a video naming template is given.
	Retain *bool `yaml:"retain,omitempty" toml:"retain,omitempty"`

	// Music settings
	Music MusicConfig `yaml:"music" toml:"music"`

	// Overlay settings
	Overlay OverlayConfig `yaml:"overlay" toml:"overlay"`

	// Thumbnail settings
	Thumbnail ThumbnailConfig `yaml:"thumbnail" toml:"thumbnail"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg" toml:"ffmpeg"`
}

type MusicConfig struct {
	Dir      string  `yaml:"dir,omitempty" toml:"dir,omitempty"`
	Volume   float64 `yaml:"volume" toml:"volume" validate:"gte=0,lte=1"`
	FileName string  `yaml:"file_name,omitempty" toml:"file_name,omitempty" validate:"omitempty,excludesall=/\\"`
}

type TextLine struct {
	Text string            `yaml:"text,omitempty" toml:"text,omitempty"`
	Font overlays.FontSpec `yaml:"font" toml:"font"`
}

type OverlayConfig struct {
	Top    TextLine `yaml:"top" toml:"top"`
	Bottom TextLine `yaml:"bottom" toml:"bottom"`
	// Window is how many seconds the text stays on screen.
	Window float64 `yaml:"window" toml:"window" validate:"gte=0"`
}

type ThumbnailConfig struct {
	Font     overlays.FontSpec `yaml:"font" toml:"font"`
	MaxWidth int               `yaml:"max_width" toml:"max_width" validate:"gte=0"`
	FontDirs []string          `yaml:"font_dirs,omitempty" toml:"font_dirs,omitempty"`
}

type FFmpegConfig struct {
	BinaryPath string        `yaml:"binary_path" toml:"binary_path"`
	ProbePath  string        `yaml:"probe_path" toml:"probe_path"`
	Threads    int           `yaml:"threads" toml:"threads" validate:"gte=0"`
	Preset     string        `yaml:"preset" toml:"preset" validate:"omitempty,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
	CRF        int           `yaml:"crf" toml:"crf" validate:"gte=0,lte=51"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout" validate:"gte=0"`
}

// RetainOutputs reports whether deliverables and intermediates survive the run.
func (c *Config) RetainOutputs() bool {
	if c.Retain != nil {
		return *c.Retain
	}
	return c.VideoName != ""
}

// FontDirs returns the configured font directories, or the platform ones.
func (c *Config) FontDirs() []string {
	if len(c.Thumbnail.FontDirs) > 0 {
		return c.Thumbnail.FontDirs
	}
	return overlays.FontDirs()
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		OutputDir:  ".",
		Workers:    2,
		ClipLength: 90,
		TrimStart:  "00:00:00",
		Music: MusicConfig{
			Volume: 0.05,
		},
		Overlay: OverlayConfig{
			Top:    TextLine{Font: defaultFont()},
			Bottom: TextLine{Font: defaultFont()},
			Window: overlays.DefaultWindow,
		},
		Thumbnail: ThumbnailConfig{
			Font:     defaultFont(),
			MaxWidth: 1280,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			Preset:     "medium",
			CRF:        23,
		},
	}
}

func defaultFont() overlays.FontSpec {
	return overlays.FontSpec{
		Family:     overlays.DefaultFontFamily,
		Size:       overlays.DefaultFontSize,
		Color:      overlays.DefaultColor,
		Background: overlays.DefaultBackground,
	}
}

func findConfigFile() string {
	candidates := []string{
		"./clipsplit.yaml",
		"./clipsplit.yml",
		"./clipsplit.toml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".clipsplit", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("fontcolor", func(fl validator.FieldLevel) bool {
		_, err := overlays.ParseColor(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("timecode", func(fl validator.FieldLevel) bool {
		_, err := timerange.ParseHMS(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks every field and reports all violations together.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
