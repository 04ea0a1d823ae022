package clips

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Placeholder is replaced by the 1-based segment index in naming templates.
const Placeholder = "$part"

// ErrNamingCollision is returned when two artifacts of a run resolve to the same path.
var ErrNamingCollision = errors.New("naming collision")

// Segment is one fixed-length cut of the working input
type Segment struct {
	Index int
	Start float64
	// Length is the duration requested from the splitter.
	Length float64
	// Expected is how much material actually remains from Start, at most Length.
	Expected float64

	Name          string
	ThumbnailName string
	VideoPath     string
	ThumbnailPath string
	FinalPath     string
}

// Plan lays out ceil(duration/clipLength) segments starting at 0 and
// stepping by exactly clipLength.
func Plan(duration, clipLength float64) ([]Segment, error) {
	if clipLength <= 0 || math.IsNaN(clipLength) || math.IsInf(clipLength, 0) {
		return nil, fmt.Errorf("clip length %v must be positive", clipLength)
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("nothing to split: duration %v", duration)
	}

	count := int(math.Ceil(duration / clipLength))
	segments := make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * clipLength
		segments = append(segments, Segment{
			Index:    i + 1,
			Start:    start,
			Length:   clipLength,
			Expected: math.Min(clipLength, duration-start),
		})
	}
	return segments, nil
}

// DefaultVideoTemplate is used when no video naming template is configured.
func DefaultVideoTemplate(stem string) string {
	return stem + " Part " + Placeholder
}

// DefaultThumbnailTemplate derives the thumbnail template from the video template.
func DefaultThumbnailTemplate(videoTemplate string) string {
	return videoTemplate + "_thumb"
}

// Namer resolves segment names and paths from templates
type Namer struct {
	dir           string
	videoTemplate string
	thumbTemplate string
	ext           string
}

// NewNamer creates a namer writing into dir. ext is the container extension
// of the segments, including the dot. An empty thumbTemplate derives from
// videoTemplate.
func NewNamer(dir, videoTemplate, thumbTemplate, ext string) (*Namer, error) {
	if strings.TrimSpace(videoTemplate) == "" {
		return nil, errors.New("video naming template is empty")
	}
	if thumbTemplate == "" {
		thumbTemplate = DefaultThumbnailTemplate(videoTemplate)
	}
	return &Namer{
		dir:           dir,
		videoTemplate: videoTemplate,
		thumbTemplate: thumbTemplate,
		ext:           ext,
	}, nil
}

// Name substitutes index into the video template.
func (n *Namer) Name(index int) string {
	return expand(n.videoTemplate, index)
}

// ThumbnailName substitutes index into the thumbnail template.
func (n *Namer) ThumbnailName(index int) string {
	return expand(n.thumbTemplate, index)
}

func expand(template string, index int) string {
	return strings.ReplaceAll(template, Placeholder, strconv.Itoa(index))
}

// Assign fills in the names and paths of every segment and verifies that no
// two paths coincide, neither among the segments nor with reserved paths
// such as the run's intermediates.
func (n *Namer) Assign(segments []Segment, reserved ...string) error {
	owners := make(map[string]string, len(segments)*3+len(reserved))
	claim := func(path, owner string) error {
		key := filepath.Clean(path)
		if prev, ok := owners[key]; ok {
			return fmt.Errorf("%w: %s and %s both resolve to %s", ErrNamingCollision, prev, owner, path)
		}
		owners[key] = owner
		return nil
	}

	for _, path := range reserved {
		if path == "" {
			continue
		}
		if err := claim(path, "intermediate "+filepath.Base(path)); err != nil {
			return err
		}
	}

	for i := range segments {
		seg := &segments[i]
		seg.Name = n.Name(seg.Index)
		seg.ThumbnailName = n.ThumbnailName(seg.Index)

		for _, name := range []string{seg.Name, seg.ThumbnailName} {
			if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
				return fmt.Errorf("invalid name %q for segment %d", name, seg.Index)
			}
		}

		seg.VideoPath = filepath.Join(n.dir, seg.Name+n.ext)
		seg.FinalPath = filepath.Join(n.dir, seg.Name+"_with_thumb"+n.ext)
		seg.ThumbnailPath = filepath.Join(n.dir, seg.ThumbnailName+".jpg")

		owner := "segment " + strconv.Itoa(seg.Index)
		for _, path := range []string{seg.VideoPath, seg.FinalPath, seg.ThumbnailPath} {
			if err := claim(path, owner); err != nil {
				return err
			}
		}
	}
	return nil
}
