// Package music builds a background track long enough to cover a video by
// looping the audio files found in a directory.
package music

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
	"github.com/kikiluvv/clipsplit/internal/logging"
	"github.com/kikiluvv/clipsplit/pkg/util"
)

// ErrMusicComposition is returned when no playlist covering the target can be built.
var ErrMusicComposition = errors.New("music composition failed")

// SupportedExtensions lists the audio files picked up from a music directory.
var SupportedExtensions = []string{".mp3", ".wav", ".aac", ".m4a"}

// maxCycles bounds the playlist to this many passes over the track list.
const maxCycles = 10000

// DurationProber reports the length of a media file in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Concatenator joins files in order into one output.
type Concatenator interface {
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
}

// Composer builds looped background tracks
type Composer struct {
	logger  zerolog.Logger
	prober  DurationProber
	concat  Concatenator
	tempDir string
}

// NewComposer creates a composer. tempDir holds the concat playlist; empty
// means the system temp directory.
func NewComposer(logger zerolog.Logger, prober DurationProber, concat Concatenator, tempDir string) *Composer {
	return &Composer{
		logger:  logging.Component(logger, "music"),
		prober:  prober,
		concat:  concat,
		tempDir: tempDir,
	}
}

// Compose concatenates tracks from dir until they cover target seconds and
// writes the result to outputBase plus the first track's extension. It
// returns "" and no error when dir is unset, missing or holds no supported
// audio.
func (c *Composer) Compose(ctx context.Context, dir string, target float64, outputBase string) (string, error) {
	tracks, err := Tracks(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMusicComposition, err)
	}
	tracks = c.withoutOutput(tracks, outputBase)
	if len(tracks) == 0 {
		c.logger.Info().Str("dir", dir).Msg("no background music found, skipping")
		return "", nil
	}
	if target <= 0 {
		return "", fmt.Errorf("%w: target duration %v must be positive", ErrMusicComposition, target)
	}

	durations := make([]float64, len(tracks))
	for i, track := range tracks {
		d, err := c.prober.ProbeDuration(ctx, track)
		if err != nil {
			c.logger.Warn().Err(err).Str("track", track).Msg("could not probe track, counting it as zero length")
			continue
		}
		durations[i] = d
	}

	playlist, total, err := BuildPlaylist(tracks, durations, target)
	if err != nil {
		return "", err
	}

	output := outputBase + filepath.Ext(playlist[0])

	c.logger.Info().
		Int("tracks", len(tracks)).
		Int("entries", len(playlist)).
		Float64("target", target).
		Float64("total", total).
		Str("output", output).
		Msg("composing background music")

	if err := c.concat.Concat(ctx, ffmpeg.ConcatOptions{
		Inputs:  playlist,
		Output:  output,
		TempDir: c.tempDir,
	}); err != nil {
		return "", err
	}

	return output, nil
}

// withoutOutput drops tracks that are themselves a composed output for
// outputBase, such as one kept from an earlier run into the same directory.
// Concat must never read the file it is writing.
func (c *Composer) withoutOutput(tracks []string, outputBase string) []string {
	base := filepath.Clean(outputBase)
	kept := tracks[:0]
	for _, track := range tracks {
		if strings.TrimSuffix(filepath.Clean(track), filepath.Ext(track)) == base {
			c.logger.Info().Str("track", track).Msg("skipping previous music output")
			continue
		}
		kept = append(kept, track)
	}
	return kept
}

// Tracks returns the supported audio files directly inside dir, sorted by
// name. A blank or missing directory yields no tracks.
func Tracks(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tracks []string
	for _, entry := range entries {
		if entry.IsDir() || !util.HasExtension(entry.Name(), SupportedExtensions...) {
			continue
		}
		tracks = append(tracks, filepath.Join(dir, entry.Name()))
	}
	return tracks, nil
}

// BuildPlaylist cycles through tracks, accumulating durations, until the
// total reaches target. durations[i] belongs to tracks[i]; non-positive
// entries add nothing. It fails rather than loop when no track has a usable
// length or the playlist would exceed maxCycles passes.
func BuildPlaylist(tracks []string, durations []float64, target float64) ([]string, float64, error) {
	if len(tracks) == 0 || len(tracks) != len(durations) {
		return nil, 0, fmt.Errorf("%w: %d tracks with %d durations", ErrMusicComposition, len(tracks), len(durations))
	}

	var cycle float64
	for _, d := range durations {
		if d > 0 {
			cycle += d
		}
	}
	if cycle <= 0 {
		return nil, 0, fmt.Errorf("%w: no track has a usable duration", ErrMusicComposition)
	}

	limit := len(tracks) * maxCycles
	var (
		playlist []string
		total    float64
	)
	for i := 0; total < target; i++ {
		if len(playlist) >= limit {
			return nil, 0, fmt.Errorf("%w: playlist would exceed %d entries", ErrMusicComposition, limit)
		}
		idx := i % len(tracks)
		playlist = append(playlist, tracks[idx])
		if durations[idx] > 0 {
			total += durations[idx]
		}
	}

	return playlist, total, nil
}
