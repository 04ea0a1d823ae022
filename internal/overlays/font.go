package overlays

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Font defaults applied when a FontSpec field is empty.
const (
	DefaultFontFamily = "DejaVuSans"
	DefaultFontSize   = 40
	DefaultColor      = "#FFFFFF"
	DefaultBackground = "#000000"
)

// ErrFontNotFound is returned when no font file matches a family.
var ErrFontNotFound = errors.New("font not found")

// FontSpec describes how a line of text is rendered.
type FontSpec struct {
	Family     string `yaml:"family" toml:"family"`
	Size       int    `yaml:"size" toml:"size" validate:"gte=0"`
	Color      string `yaml:"color" toml:"color" validate:"omitempty,fontcolor"`
	Background string `yaml:"background_color" toml:"background_color" validate:"omitempty,fontcolor"`
}

// WithDefaults returns a copy with empty fields filled in.
func (f FontSpec) WithDefaults() FontSpec {
	if f.Family == "" {
		f.Family = DefaultFontFamily
	}
	if f.Size <= 0 {
		f.Size = DefaultFontSize
	}
	if f.Color == "" {
		f.Color = DefaultColor
	}
	if f.Background == "" {
		f.Background = DefaultBackground
	}
	return f
}

var namedColors = map[string]color.RGBA{
	"white":  {0xff, 0xff, 0xff, 0xff},
	"black":  {0x00, 0x00, 0x00, 0xff},
	"red":    {0xff, 0x00, 0x00, 0xff},
	"green":  {0x00, 0x80, 0x00, 0xff},
	"blue":   {0x00, 0x00, 0xff, 0xff},
	"yellow": {0xff, 0xff, 0x00, 0xff},
	"gray":   {0x80, 0x80, 0x80, 0xff},
	"grey":   {0x80, 0x80, 0x80, 0xff},
}

// ParseColor accepts #RGB, #RRGGBB, #RRGGBBAA, the same with a 0x prefix or
// no prefix, and a handful of common colour names.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}

	hex := s
	switch {
	case strings.HasPrefix(hex, "#"):
		hex = hex[1:]
	case strings.HasPrefix(hex, "0x"), strings.HasPrefix(hex, "0X"):
		hex = hex[2:]
	}

	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}

	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

// FFmpegColor renders a colour in drawtext notation (0xRRGGBB[@alpha]).
func FFmpegColor(s string) (string, error) {
	c, err := ParseColor(s)
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("0x%02X%02X%02X", c.R, c.G, c.B)
	if c.A != 0xff {
		out += fmt.Sprintf("@%.2f", float64(c.A)/255)
	}
	return out, nil
}

var fontExtensions = []string{".ttf", ".otf", ".ttc"}

// FontDirs returns the platform font directories searched by LocateFont.
func FontDirs() []string {
	home, _ := os.UserHomeDir()

	var dirs []string
	switch runtime.GOOS {
	case "windows":
		dirs = append(dirs, filepath.Join(os.Getenv("WINDIR"), "Fonts"))
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, "Microsoft", "Windows", "Fonts"))
		}
	case "darwin":
		dirs = append(dirs, "/System/Library/Fonts", "/Library/Fonts")
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Fonts"))
		}
	default:
		dirs = append(dirs, "/usr/share/fonts", "/usr/local/share/fonts")
		if home != "" {
			dirs = append(dirs, filepath.Join(home, ".fonts"), filepath.Join(home, ".local", "share", "fonts"))
		}
	}
	return dirs
}

// LocateFont resolves a family to a font file. family may be a path to a font
// file, or a name matched case-insensitively against file names (without
// extension) in dirs.
func LocateFont(family string, dirs []string) (string, error) {
	family = strings.TrimSpace(family)
	if family == "" {
		return "", ErrFontNotFound
	}

	if hasFontExt(family) || strings.ContainsAny(family, `/\`) {
		if info, err := os.Stat(family); err == nil && !info.IsDir() {
			return family, nil
		}
		return "", fmt.Errorf("%w: %s", ErrFontNotFound, family)
	}

	want := normalizeFontName(family)
	for _, dir := range dirs {
		var found string
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !hasFontExt(path) {
				return nil
			}
			name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
			if normalizeFontName(name) == want {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if found != "" {
			return found, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrFontNotFound, family)
}

func hasFontExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range fontExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// normalizeFontName folds "DejaVu Sans", "dejavu-sans" and "DejaVuSans" together.
func normalizeFontName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(name))
}
