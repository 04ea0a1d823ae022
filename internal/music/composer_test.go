package music

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
)

type fakeProber map[string]float64

func (f fakeProber) ProbeDuration(_ context.Context, path string) (float64, error) {
	d, ok := f[filepath.Base(path)]
	if !ok {
		return 0, errors.New("probe failed")
	}
	return d, nil
}

type fakeConcat struct {
	calls []ffmpeg.ConcatOptions
	err   error
}

func (f *fakeConcat) Concat(_ context.Context, opts ffmpeg.ConcatOptions) error {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(opts.Output, []byte("music"), 0o644)
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestComposeEmptyOrMissingDir(t *testing.T) {
	concat := &fakeConcat{}
	c := NewComposer(zerolog.Nop(), fakeProber{}, concat, "")

	for _, dir := range []string{"", t.TempDir(), filepath.Join(t.TempDir(), "absent")} {
		path, err := c.Compose(context.Background(), dir, 200, filepath.Join(t.TempDir(), "out_music"))
		require.NoError(t, err)
		assert.Empty(t, path)
	}
	assert.Empty(t, concat.calls)
}

func TestComposeCoversTarget(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3", "b.mp3", "notes.txt", "cover.jpg")

	concat := &fakeConcat{}
	c := NewComposer(zerolog.Nop(), fakeProber{"a.mp3": 30, "b.mp3": 50}, concat, t.TempDir())

	base := filepath.Join(t.TempDir(), "talk_music")
	path, err := c.Compose(context.Background(), dir, 200, base)
	require.NoError(t, err)
	assert.Equal(t, base+".mp3", path)
	assert.FileExists(t, path)

	require.Len(t, concat.calls, 1)
	var names []string
	for _, in := range concat.calls[0].Inputs {
		names = append(names, filepath.Base(in))
	}
	assert.Equal(t, []string{"a.mp3", "b.mp3", "a.mp3", "b.mp3", "a.mp3", "b.mp3"}, names)
}

func TestComposeUsesFirstTrackExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "loop.WAV")

	c := NewComposer(zerolog.Nop(), fakeProber{"loop.WAV": 10}, &fakeConcat{}, "")
	base := filepath.Join(t.TempDir(), "bed")
	path, err := c.Compose(context.Background(), dir, 5, base)
	require.NoError(t, err)
	assert.Equal(t, base+".WAV", path)
}

func TestComposeAllTracksZeroLength(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3", "b.m4a", "c.aac")

	concat := &fakeConcat{}
	// b.m4a is missing from the prober and fails to probe.
	c := NewComposer(zerolog.Nop(), fakeProber{"a.mp3": 0, "c.aac": 0}, concat, "")

	_, err := c.Compose(context.Background(), dir, 60, filepath.Join(t.TempDir(), "m"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMusicComposition)
	assert.Empty(t, concat.calls)
}

func TestComposeFailedProbeCountsAsZero(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3", "b.mp3")

	concat := &fakeConcat{}
	c := NewComposer(zerolog.Nop(), fakeProber{"b.mp3": 40}, concat, "")

	_, err := c.Compose(context.Background(), dir, 70, filepath.Join(t.TempDir(), "m"))
	require.NoError(t, err)
	require.Len(t, concat.calls, 1)
	assert.Len(t, concat.calls[0].Inputs, 4)
}

func TestComposeConcatFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3")

	boom := errors.New("concat exploded")
	c := NewComposer(zerolog.Nop(), fakeProber{"a.mp3": 10}, &fakeConcat{err: boom}, "")

	_, err := c.Compose(context.Background(), dir, 30, filepath.Join(t.TempDir(), "m"))
	assert.ErrorIs(t, err, boom)
}

func TestComposeRejectsNonPositiveTarget(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3")

	c := NewComposer(zerolog.Nop(), fakeProber{"a.mp3": 10}, &fakeConcat{}, "")
	_, err := c.Compose(context.Background(), dir, 0, filepath.Join(t.TempDir(), "m"))
	assert.ErrorIs(t, err, ErrMusicComposition)
}

func TestBuildPlaylist(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		target    float64
		wantLen   int
		wantTotal float64
		wantErr   bool
	}{
		{name: "single pass", durations: []float64{60, 60}, target: 100, wantLen: 2, wantTotal: 120},
		{name: "exact fit stops", durations: []float64{50, 50}, target: 100, wantLen: 2, wantTotal: 100},
		{name: "loops", durations: []float64{10}, target: 35, wantLen: 4, wantTotal: 40},
		{name: "zero entries skipped in sum", durations: []float64{0, 25}, target: 50, wantLen: 4, wantTotal: 50},
		{name: "all zero", durations: []float64{0, 0}, target: 10, wantErr: true},
		{name: "cap exceeded", durations: []float64{0.001}, target: 1e6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracks := make([]string, len(tt.durations))
			for i := range tracks {
				tracks[i] = filepath.Join("music", string(rune('a'+i))+".mp3")
			}

			playlist, total, err := BuildPlaylist(tracks, tt.durations, tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMusicComposition)
				return
			}
			require.NoError(t, err)
			assert.Len(t, playlist, tt.wantLen)
			assert.InDelta(t, tt.wantTotal, total, 1e-9)
			assert.GreaterOrEqual(t, total, tt.target)
		})
	}
}

func TestBuildPlaylistNoTracks(t *testing.T) {
	_, _, err := BuildPlaylist(nil, nil, 10)
	assert.ErrorIs(t, err, ErrMusicComposition)
}

func TestComposeSkipsPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp3", "talk_music.mp3")

	concat := &fakeConcat{}
	c := NewComposer(zerolog.Nop(), fakeProber{"a.mp3": 120, "talk_music.mp3": 240}, concat, t.TempDir())

	base := filepath.Join(dir, "talk_music")
	path, err := c.Compose(context.Background(), dir, 200, base)
	require.NoError(t, err)
	assert.Equal(t, base+".mp3", path)

	require.Len(t, concat.calls, 1)
	for _, in := range concat.calls[0].Inputs {
		assert.NotEqual(t, path, in)
	}
	assert.Len(t, concat.calls[0].Inputs, 2)
}

func TestComposeOnlyPreviousOutputSkipsMusic(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "talk_music.wav")

	concat := &fakeConcat{}
	c := NewComposer(zerolog.Nop(), fakeProber{"talk_music.wav": 240}, concat, "")

	path, err := c.Compose(context.Background(), dir, 200, filepath.Join(dir, "talk_music"))
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, concat.calls)
}
