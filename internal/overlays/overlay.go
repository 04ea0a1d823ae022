// Package overlays builds burned-in text and orientation filters and carries
// the font styling shared with thumbnails.
package overlays

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultWindow is how long overlay text stays on screen at the start of a segment.
const DefaultWindow = 5.0

// ErrInvalidTranspose is returned for transpose codes outside 0-3.
var ErrInvalidTranspose = errors.New("transpose code must be between 0 and 3")

// Position is where a line is anchored on the frame.
type Position string

const (
	Top    Position = "top"
	Bottom Position = "bottom"
)

// Line is a single overlay caption.
type Line struct {
	Text string
	Font FontSpec
}

// TextOverlay is the optional top/bottom caption pair burned into every segment.
type TextOverlay struct {
	Top    Line
	Bottom Line
	// Window is the number of seconds, from the segment start, the text is shown.
	Window float64
}

// Empty reports whether neither line has text.
func (o TextOverlay) Empty() bool {
	return strings.TrimSpace(o.Top.Text) == "" && strings.TrimSpace(o.Bottom.Text) == ""
}

// fallbackFamilies are tried, in order, when a line's family cannot be found.
var fallbackFamilies = []string{DefaultFontFamily, "Arial", "LiberationSans", "FreeSans"}

// Filters returns the drawtext filters for the configured lines, top first.
// Font families are looked up in dirs. A family that cannot be found is
// replaced by the first fallback family present, or by ffmpeg's built-in
// font when none is; each substitution is reported in warnings.
func (o TextOverlay) Filters(dirs []string) (filters []string, warnings []error, err error) {
	window := o.Window
	if window <= 0 {
		window = DefaultWindow
	}

	for _, item := range []struct {
		line Line
		pos  Position
	}{{o.Top, Top}, {o.Bottom, Bottom}} {
		if strings.TrimSpace(item.line.Text) == "" {
			continue
		}
		fontFile, warn := resolveFontFile(item.line.Font.Family, dirs)
		if warn != nil {
			warnings = append(warnings, fmt.Errorf("%s overlay: %w", item.pos, warn))
		}
		f, err := DrawText(item.line, item.pos, window, fontFile)
		if err != nil {
			return nil, nil, fmt.Errorf("%s overlay: %w", item.pos, err)
		}
		filters = append(filters, f)
	}
	return filters, warnings, nil
}

// resolveFontFile returns a font file for family, or "" for ffmpeg's default.
// The error is non-nil only when an explicitly requested family was replaced.
func resolveFontFile(family string, dirs []string) (string, error) {
	var requested error
	if strings.TrimSpace(family) != "" {
		path, err := LocateFont(family, dirs)
		if err == nil {
			return path, nil
		}
		requested = err
	}

	for _, fallback := range fallbackFamilies {
		if path, err := LocateFont(fallback, dirs); err == nil {
			if requested != nil {
				return path, fmt.Errorf("%w, using %s", requested, path)
			}
			return path, nil
		}
	}

	if requested != nil {
		return "", fmt.Errorf("%w, using the ffmpeg default font", requested)
	}
	return "", nil
}

// DrawText builds a drawtext filter for line, visible during [0, window]
// seconds. fontFile is used when non-empty; otherwise no font option is set
// and ffmpeg picks its default.
func DrawText(line Line, pos Position, window float64, fontFile string) (string, error) {
	spec := line.Font
	if spec.Size <= 0 {
		spec.Size = DefaultFontSize
	}
	if spec.Color == "" {
		spec.Color = DefaultColor
	}

	fontColor, err := FFmpegColor(spec.Color)
	if err != nil {
		return "", err
	}

	opts := []string{
		"text=" + EscapeFilterValue(line.Text),
		"expansion=none",
	}
	if fontFile != "" {
		opts = append(opts, "fontfile="+EscapeFilterValue(fontFile))
	}
	opts = append(opts,
		"fontsize="+strconv.Itoa(spec.Size),
		"fontcolor="+fontColor,
		"x=(w-text_w)/2",
	)

	switch pos {
	case Top:
		opts = append(opts, "y=h*0.05")
	case Bottom:
		opts = append(opts, "y=h-text_h-h*0.05")
	default:
		return "", fmt.Errorf("unknown overlay position %q", pos)
	}

	if spec.Background != "" {
		boxColor, err := FFmpegColor(spec.Background)
		if err != nil {
			return "", err
		}
		opts = append(opts, "box=1", "boxcolor="+boxColor, "boxborderw=10")
	}

	opts = append(opts, fmt.Sprintf("enable='between(t,0,%s)'", strconv.FormatFloat(window, 'f', -1, 64)))

	return "drawtext=" + strings.Join(opts, ":"), nil
}

// Transpose returns the transpose filter for code.
func Transpose(code int) (string, error) {
	if code < 0 || code > 3 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidTranspose, code)
	}
	return "transpose=" + strconv.Itoa(code), nil
}

// SwapsDimensions reports whether a transpose code exchanges width and height.
// Every transpose mode rotates by 90 degrees.
func SwapsDimensions(code int) bool {
	return code >= 0 && code <= 3
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeFilterValue escapes s for use as an option value inside a filter
// chain passed with -vf: once for the option parser and once for the
// filtergraph parser.
func EscapeFilterValue(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(s))
}
