package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/clipsplit/internal/clips"
	"github.com/kikiluvv/clipsplit/internal/config"
	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
	"github.com/kikiluvv/clipsplit/internal/logging"
	"github.com/kikiluvv/clipsplit/internal/music"
	"github.com/kikiluvv/clipsplit/internal/overlays"
	"github.com/kikiluvv/clipsplit/internal/thumbnail"
	"github.com/kikiluvv/clipsplit/internal/timerange"
)

// fakeMedia stands in for the ffmpeg executor. Durations are keyed by file
// base name; every write operation leaves a small placeholder file.
type fakeMedia struct {
	mu         sync.Mutex
	durations  map[string]float64
	resolution ffmpeg.Resolution
	failSplit  int
	failAttach int

	trims   []ffmpeg.TrimOptions
	mixes   []string
	splits  []ffmpeg.SplitOptions
	inputs  []string
	attachs int
	concats int
}

func newFakeMedia(durations map[string]float64) *fakeMedia {
	return &fakeMedia{
		durations:  durations,
		resolution: ffmpeg.Resolution{Width: 320, Height: 180},
	}
}

func write(path string) error {
	return os.WriteFile(path, []byte("media"), 0o644)
}

func (f *fakeMedia) ProbeDuration(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.durations[filepath.Base(path)]
	if !ok {
		return 0, &ffmpeg.ProbeError{Path: path, Field: "duration", Err: errors.New("no such file")}
	}
	return d, nil
}

func (f *fakeMedia) ProbeResolution(context.Context, string) (ffmpeg.Resolution, error) {
	return f.resolution, nil
}

func (f *fakeMedia) Trim(_ context.Context, _, output string, opts ffmpeg.TrimOptions) error {
	f.mu.Lock()
	f.trims = append(f.trims, opts)
	f.mu.Unlock()
	return write(output)
}

func (f *fakeMedia) MixBackground(_ context.Context, video, musicPath, output string, opts ffmpeg.MixOptions) error {
	f.mu.Lock()
	f.mixes = append(f.mixes, filepath.Base(video)+"+"+filepath.Base(musicPath)+fmt.Sprintf("@%v", opts.Gain))
	f.mu.Unlock()
	return write(output)
}

func (f *fakeMedia) Split(_ context.Context, input, output string, opts ffmpeg.SplitOptions) error {
	f.mu.Lock()
	f.splits = append(f.splits, opts)
	f.inputs = append(f.inputs, filepath.Base(input))
	fail := f.failSplit > 0 && opts.Start == float64(f.failSplit-1)*opts.Length
	f.mu.Unlock()

	if fail {
		return &ffmpeg.TranscodeError{Tool: "ffmpeg", Stderr: "Conversion failed!", Err: errors.New("exit status 1")}
	}
	return write(output)
}

func (f *fakeMedia) AttachThumbnail(_ context.Context, video, image, output string) error {
	for _, p := range []string{video, image} {
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.attachs++
	f.mu.Unlock()

	if f.failAttach > 0 && strings.HasSuffix(output, fmt.Sprintf("Part %d_with_thumb.mp4", f.failAttach)) {
		if err := write(output); err != nil {
			return err
		}
		return &ffmpeg.TranscodeError{Tool: "ffmpeg", Stderr: "muxing failed", Err: errors.New("exit status 1")}
	}
	return write(output)
}

func (f *fakeMedia) Concat(_ context.Context, opts ffmpeg.ConcatOptions) error {
	f.mu.Lock()
	f.concats++
	f.mu.Unlock()
	return write(opts.Output)
}

type thumbCall struct {
	text          string
	width, height int
}

// recordingThumbs renders through the real synthesizer and records the labels.
type recordingThumbs struct {
	inner *thumbnail.Synthesizer
	mu    sync.Mutex
	calls []thumbCall
}

func (r *recordingThumbs) Synthesize(text string, width, height int, spec overlays.FontSpec, output string) error {
	r.mu.Lock()
	r.calls = append(r.calls, thumbCall{text, width, height})
	r.mu.Unlock()
	return r.inner.Synthesize(text, width, height, spec, output)
}

func (r *recordingThumbs) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.text
	}
	sort.Strings(out)
	return out
}

type fixture struct {
	media  *fakeMedia
	thumbs *recordingThumbs
	pipe   *Pipeline
	input  string
	out    string
}

func newFixture(t *testing.T, durations map[string]float64) *fixture {
	t.Helper()

	srcDir := t.TempDir()
	input := filepath.Join(srcDir, "talk.mp4")
	require.NoError(t, write(input))

	media := newFakeMedia(durations)
	thumbs := &recordingThumbs{inner: thumbnail.New(zerolog.Nop(), nil, 0)}
	composer := music.NewComposer(zerolog.Nop(), media, media, t.TempDir())

	return &fixture{
		media:  media,
		thumbs: thumbs,
		pipe:   New(zerolog.Nop(), media, composer, thumbs),
		input:  input,
		out:    filepath.Join(t.TempDir(), "out"),
	}
}

func (fx *fixture) options() Options {
	return Options{
		Input:         fx.input,
		OutputDir:     fx.out,
		ClipLength:    90,
		Gain:          0.05,
		VideoTemplate: "Talk Part $part",
		Retain:        true,
		Workers:       2,
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunSplitsWithoutMusic(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 200})
	opts := fx.options()
	opts.MusicDir = t.TempDir()

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateDone, fx.pipe.State())
	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.Retained)
	assert.Empty(t, res.Music)

	require.Len(t, res.Segments, 3)
	var expected []float64
	for _, s := range res.Segments {
		expected = append(expected, s.Expected)
	}
	assert.Equal(t, []float64{90, 90, 20}, expected)

	assert.Empty(t, fx.media.trims, "whole-file range needs no trim")
	assert.Empty(t, fx.media.mixes, "no music means no mix")
	assert.Zero(t, fx.media.concats)
	require.Len(t, fx.media.splits, 3)
	for _, s := range fx.media.splits {
		assert.Equal(t, 90.0, s.Length)
		assert.Empty(t, s.Filters)
	}
	assert.Equal(t, []string{"talk.mp4", "talk.mp4", "talk.mp4"}, fx.media.inputs)
	assert.Equal(t, 3, fx.media.attachs)

	assert.Equal(t, []string{"Talk Part 1", "Talk Part 2", "Talk Part 3"}, fx.thumbs.texts())

	assert.ElementsMatch(t, []string{
		"Talk Part 1_with_thumb.mp4", "Talk Part 2_with_thumb.mp4", "Talk Part 3_with_thumb.mp4",
		"Talk Part 1_thumb.jpg", "Talk Part 2_thumb.jpg", "Talk Part 3_thumb.jpg",
	}, listDir(t, fx.out))
}

func TestRunWithoutRetainLeavesNothing(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 200})
	opts := fx.options()
	opts.Retain = false

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, res.Retained)
	assert.Len(t, res.Segments, 3)
	assert.Equal(t, 3, fx.media.attachs)

	assert.Empty(t, listDir(t, fx.out))
	assert.FileExists(t, fx.input)
}

func TestRunTrimWindow(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 600, "talk_trimmed.mp4": 90})
	opts := fx.options()

	r, err := timerange.Resolve("00:00:10", "00:01:40")
	require.NoError(t, err)
	opts.Range = r

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, fx.media.trims, 1)
	assert.Equal(t, 10.0, fx.media.trims[0].Start)
	require.NotNil(t, fx.media.trims[0].Duration)
	assert.Equal(t, 90.0, *fx.media.trims[0].Duration)

	require.Len(t, res.Segments, 1)
	assert.Equal(t, 90.0, res.Segments[0].Expected)
	assert.Equal(t, []string{"talk_trimmed.mp4"}, fx.media.inputs)

	// Retained runs keep the trimmed intermediate.
	assert.FileExists(t, filepath.Join(fx.out, "talk_trimmed.mp4"))
}

func TestRunWithMusic(t *testing.T) {
	musicDir := t.TempDir()
	require.NoError(t, write(filepath.Join(musicDir, "a.mp3")))

	fx := newFixture(t, map[string]float64{
		"talk.mp4":            200,
		"a.mp3":               60,
		"talk_with_music.mp4": 200,
	})
	opts := fx.options()
	opts.MusicDir = musicDir
	opts.Retain = false

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Empty(t, res.Music, "discarded music is not reported")
	assert.Equal(t, 1, fx.media.concats)
	assert.Equal(t, []string{"talk.mp4+talk_music.mp3@0.05"}, fx.media.mixes)
	for _, in := range fx.media.inputs {
		assert.Equal(t, "talk_with_music.mp4", in)
	}
	assert.Empty(t, listDir(t, fx.out))
}

func TestRunMusicFileNameRetained(t *testing.T) {
	musicDir := t.TempDir()
	require.NoError(t, write(filepath.Join(musicDir, "bed.m4a")))

	fx := newFixture(t, map[string]float64{
		"talk.mp4":            100,
		"bed.m4a":             300,
		"talk_with_music.mp4": 100,
	})
	opts := fx.options()
	opts.MusicDir = musicDir
	opts.MusicFileName = "soundtrack"

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.out, "soundtrack.m4a"), res.Music)
	assert.FileExists(t, res.Music)
	assert.FileExists(t, filepath.Join(fx.out, "talk_with_music.mp4"))
}

func TestRunMusicFileNameKeptWithoutRetain(t *testing.T) {
	musicDir := t.TempDir()
	require.NoError(t, write(filepath.Join(musicDir, "bed.mp3")))

	fx := newFixture(t, map[string]float64{
		"talk.mp4":            100,
		"bed.mp3":             300,
		"talk_with_music.mp4": 100,
	})
	opts := fx.options()
	opts.MusicDir = musicDir
	opts.MusicFileName = "soundtrack"
	opts.Retain = false

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.out, "soundtrack.mp3"), res.Music)
	assert.FileExists(t, res.Music)
	assert.Equal(t, []string{"soundtrack.mp3"}, listDir(t, fx.out))
}

func TestRunAttachFailureRemovesPartialClip(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 270})
	opts := fx.options()
	opts.Workers = 1
	fx.media.failAttach = 2

	_, err := fx.pipe.Run(context.Background(), opts)
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageAttach, se.Stage)
	assert.Equal(t, 2, se.Segment)

	remaining := listDir(t, fx.out)
	assert.Contains(t, remaining, "Talk Part 1_with_thumb.mp4")
	assert.NotContains(t, remaining, "Talk Part 2_with_thumb.mp4")
	assert.NotContains(t, remaining, "Talk Part 2.mp4")
}

func TestRunFailureLogsCommandOnceAtDebug(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 270})
	fx.media.failSplit = 1

	var buf bytes.Buffer
	logger := logging.New(zerolog.SyncWriter(&buf), "json")
	composer := music.NewComposer(zerolog.Nop(), fx.media, fx.media, t.TempDir())
	pipe := New(logger, fx.media, composer, fx.thumbs)

	opts := fx.options()
	opts.Workers = 1
	_, err := pipe.Run(context.Background(), opts)
	require.Error(t, err)

	var failure map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.NotEqual(t, "error", entry["level"], "the caller reports the error")
		if entry["message"] == "pipeline failed" {
			failure = entry
		}
	}

	require.NotNil(t, failure)
	assert.Equal(t, "debug", failure["level"])
	assert.Equal(t, "pipeline", failure["component"])
	assert.Contains(t, failure["command"], "ffmpeg")
	assert.Equal(t, "Conversion failed!", failure["stderr"])
}

func TestRunSplitFailure(t *testing.T) {
	for _, retain := range []bool{true, false} {
		t.Run(fmt.Sprintf("retain=%v", retain), func(t *testing.T) {
			fx := newFixture(t, map[string]float64{"talk.mp4": 270})
			opts := fx.options()
			opts.Retain = retain
			opts.Workers = 1
			fx.media.failSplit = 2

			_, err := fx.pipe.Run(context.Background(), opts)
			require.Error(t, err)
			assert.Equal(t, StateFailed, fx.pipe.State())

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, StageSplit, se.Stage)
			assert.Equal(t, 2, se.Segment)
			assert.Contains(t, err.Error(), "Conversion failed!")

			var te *ffmpeg.TranscodeError
			assert.True(t, errors.As(err, &te))

			remaining := listDir(t, fx.out)
			for _, name := range []string{"Talk Part 1.mp4", "Talk Part 2.mp4", "Talk Part 3.mp4"} {
				assert.NotContains(t, remaining, name, "pre-thumbnail cuts are always removed")
			}
			if retain {
				assert.Contains(t, remaining, "Talk Part 1_with_thumb.mp4")
			} else {
				assert.Empty(t, remaining)
			}
		})
	}
}

func TestRunNamingCollisionBeforeSplit(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 200})
	opts := fx.options()
	opts.VideoTemplate = "clip"

	_, err := fx.pipe.Run(context.Background(), opts)
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StagePlan, se.Stage)
	assert.ErrorIs(t, err, clips.ErrNamingCollision)
	assert.Empty(t, fx.media.splits)
}

func TestRunProbeFailure(t *testing.T) {
	fx := newFixture(t, map[string]float64{})

	_, err := fx.pipe.Run(context.Background(), fx.options())
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageProbe, se.Stage)

	var pe *ffmpeg.ProbeError
	assert.True(t, errors.As(err, &pe))
}

func TestRunTrimStartBeyondSource(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 30})
	opts := fx.options()
	r, err := timerange.Resolve("00:01:00", "")
	require.NoError(t, err)
	opts.Range = r

	_, err = fx.pipe.Run(context.Background(), opts)
	assert.ErrorIs(t, err, timerange.ErrMalformedTimecode)
	assert.Empty(t, fx.media.trims)
}

func TestRunTransposeAndOverlay(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 50})
	fx.media.resolution = ffmpeg.Resolution{Width: 320, Height: 180}

	opts := fx.options()
	code := 1
	opts.Transpose = &code
	opts.Overlay = &overlays.TextOverlay{Top: overlays.Line{Text: "Hello"}}

	_, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, fx.media.splits, 1)
	filters := fx.media.splits[0].Filters
	require.Len(t, filters, 2)
	assert.Equal(t, "transpose=1", filters[0])
	assert.Contains(t, filters[1], "drawtext=text=Hello")

	require.Len(t, fx.thumbs.calls, 1)
	assert.Equal(t, 180, fx.thumbs.calls[0].width)
	assert.Equal(t, 320, fx.thumbs.calls[0].height)
}

func TestRunValidation(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 50})

	opts := fx.options()
	opts.Input = filepath.Join(t.TempDir(), "missing.mp4")
	_, err := fx.pipe.Run(context.Background(), opts)
	assert.Error(t, err)

	opts = fx.options()
	opts.ClipLength = 0
	_, err = fx.pipe.Run(context.Background(), opts)
	assert.Error(t, err)

	opts = fx.options()
	opts.Gain = 2
	_, err = fx.pipe.Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRunDefaultTemplate(t *testing.T) {
	fx := newFixture(t, map[string]float64{"talk.mp4": 100})
	opts := fx.options()
	opts.VideoTemplate = ""

	res, err := fx.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, "talk Part 1", res.Segments[0].Name)
	assert.Equal(t, "talk Part 2_thumb", res.Segments[1].ThumbnailName)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Input = "/videos/lecture.mkv"
	cfg.OutputDir = "/tmp/out"

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "lecture Part $part", opts.VideoTemplate)
	assert.False(t, opts.Retain)
	assert.Nil(t, opts.Overlay)
	assert.Equal(t, 0.0, opts.Range.Start)
	assert.False(t, opts.Range.HasEnd())
	assert.Equal(t, 0.05, opts.Gain)
	assert.Equal(t, 23, opts.Encode.CRF)

	cfg.VideoName = "Lecture $part"
	cfg.Overlay.Bottom.Text = "like and subscribe"
	cfg.TrimEnd = "00:10:00"
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.True(t, opts.Retain)
	require.NotNil(t, opts.Overlay)
	assert.Equal(t, "like and subscribe", opts.Overlay.Bottom.Text)
	assert.Equal(t, 600.0, opts.Range.End())

	cfg.TrimStart = "00:20:00"
	_, err = OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, timerange.ErrMalformedTimecode)
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StageMix, Err: errors.New("boom")}
	assert.Equal(t, "mix: boom", err.Error())

	err = &StageError{Stage: StageAttach, Segment: 3, Err: errors.New("boom")}
	assert.Equal(t, "attach: segment 3: boom", err.Error())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "segmenting", StateSegmenting.String())
	assert.Equal(t, "failed", StateFailed.String())
}
