// Package thumbnail renders text labels onto solid-colour still images used
// as attached-picture covers.
package thumbnail

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kikiluvv/clipsplit/internal/logging"
	"github.com/kikiluvv/clipsplit/internal/overlays"
)

// Canvas defaults
const (
	DefaultWidth    = 640
	DefaultHeight   = 360
	DefaultMaxWidth = 1280

	// textFill is the share of the canvas width a label may occupy.
	textFill    = 0.9
	minFontSize = 8
	jpegQuality = 90
)

// FontLoadWarning reports a font that could not be used. The label is still
// rendered with the built-in font.
type FontLoadWarning struct {
	Family string
	Err    error
}

func (w *FontLoadWarning) Error() string {
	return fmt.Sprintf("font %q unavailable, using built-in default: %v", w.Family, w.Err)
}

func (w *FontLoadWarning) Unwrap() error {
	return w.Err
}

type loadedFont struct {
	font    *opentype.Font
	warning *FontLoadWarning
}

// Synthesizer renders thumbnails. It is safe for concurrent use.
type Synthesizer struct {
	logger   zerolog.Logger
	fontDirs []string
	maxWidth int

	mu    sync.Mutex
	fonts map[string]loadedFont
}

// New creates a synthesizer that looks up font families in fontDirs and
// downscales images wider than maxWidth (0 disables downscaling).
func New(logger zerolog.Logger, fontDirs []string, maxWidth int) *Synthesizer {
	return &Synthesizer{
		logger:   logging.Component(logger, "thumbnail"),
		fontDirs: fontDirs,
		maxWidth: maxWidth,
		fonts:    make(map[string]loadedFont),
	}
}

// Synthesize writes an image of width x height with text centred on the
// font's background colour. Missing dimensions fall back to 640x360. The
// encoding follows the output extension: .png, otherwise JPEG.
func (s *Synthesizer) Synthesize(text string, width, height int, spec overlays.FontSpec, output string) error {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	spec = spec.WithDefaults()

	fg, err := overlays.ParseColor(spec.Color)
	if err != nil {
		return fmt.Errorf("font color: %w", err)
	}
	bg, err := overlays.ParseColor(spec.Background)
	if err != nil {
		return fmt.Errorf("background color: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	face, err := s.face(spec.Family, spec.Size)
	if err != nil {
		return err
	}

	if text != "" {
		if w := font.MeasureString(face, text).Ceil(); w > int(float64(width)*textFill) {
			if size := fitSize(spec.Size, w, width); size < spec.Size {
				face.Close()
				if face, err = s.face(spec.Family, size); err != nil {
					return err
				}
			}
		}
		drawCentered(canvas, face, text, image.NewUniform(fg))
	}
	face.Close()

	var img image.Image = canvas
	if s.maxWidth > 0 && width > s.maxWidth {
		img = resize.Resize(uint(s.maxWidth), 0, canvas, resize.Lanczos3)
	}

	if err := encode(output, img); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}

	s.logger.Debug().
		Str("output", output).
		Str("text", text).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("thumbnail written")

	return nil
}

// face returns a new face for family at size. Faces are not safe for
// concurrent use, so one is created per call over a shared parsed font.
func (s *Synthesizer) face(family string, size int) (font.Face, error) {
	f := s.font(family)
	if f == nil {
		return basicfont.Face7x13, nil
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// font resolves and parses family once, substituting the embedded Go font
// when it cannot be loaded. A nil result means even the fallback failed.
func (s *Synthesizer) font(family string) *opentype.Font {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lf, ok := s.fonts[family]; ok {
		return lf.font
	}

	lf := loadedFont{}
	f, err := loadFont(family, s.fontDirs)
	if err != nil {
		lf.warning = &FontLoadWarning{Family: family, Err: err}
		s.logger.Warn().Err(lf.warning).Msg("font load failed")

		f, err = opentype.Parse(goregular.TTF)
		if err != nil {
			s.logger.Warn().Err(err).Msg("built-in font unusable, using bitmap face")
			f = nil
		}
	}
	lf.font = f
	s.fonts[family] = lf
	return f
}

// Warning returns the load warning recorded for family, if any.
func (s *Synthesizer) Warning(family string) *FontLoadWarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fonts[family].warning
}

func loadFont(family string, dirs []string) (*opentype.Font, error) {
	path, err := overlays.LocateFont(family, dirs)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".ttc") {
		collection, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return collection.Font(0)
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// fitSize scales size down so text measured at textWidth fits the fill share
// of canvasWidth.
func fitSize(size, textWidth, canvasWidth int) int {
	if textWidth <= 0 {
		return size
	}
	limit := float64(canvasWidth) * textFill
	if float64(textWidth) <= limit {
		return size
	}
	fitted := int(float64(size) * limit / float64(textWidth))
	if fitted < minFontSize {
		fitted = minFontSize
	}
	return fitted
}

func drawCentered(dst draw.Image, face font.Face, text string, src image.Image) {
	bounds := dst.Bounds()
	metrics := face.Metrics()

	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	x := bounds.Min.X + (bounds.Dx()-textWidth)/2
	y := bounds.Min.Y + (bounds.Dy()-textHeight)/2 + metrics.Ascent.Ceil()

	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func encode(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		return png.Encode(f, img)
	}
	return jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
}
