package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/clipsplit/internal/clips"
	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
	"github.com/kikiluvv/clipsplit/internal/logging"
	"github.com/kikiluvv/clipsplit/internal/overlays"
	"github.com/kikiluvv/clipsplit/internal/timerange"
	"github.com/kikiluvv/clipsplit/pkg/util"
)

// DefaultWorkers is the segment worker pool size when none is configured.
const DefaultWorkers = 2

// Pipeline orchestrates probe, trim, music, mix and per-segment work
type Pipeline struct {
	logger   zerolog.Logger
	media    Media
	composer Composer
	thumbs   Thumbnailer

	mu    sync.Mutex
	state State
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, media Media, composer Composer, thumbs Thumbnailer) *Pipeline {
	return &Pipeline{
		logger:   logging.Component(logger, "pipeline"),
		media:    media,
		composer: composer,
		thumbs:   thumbs,
		state:    StateInit,
	}
}

// State returns the state reached by the current or last run.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(log zerolog.Logger, s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	log.Debug().Stringer("state", s).Msg("pipeline state")
}

// Run executes one full segmentation run. Cleanup runs on success and on
// failure; a cleanup problem is logged and never replaces the run error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	runID := uuid.New().String()
	log := p.logger.With().Str("run", runID).Logger()

	p.transition(log, StateInit)

	if err := validate(&opts); err != nil {
		p.transition(log, StateFailed)
		return nil, &StageError{Stage: StagePlan, Err: err}
	}
	if err := util.EnsureDir(opts.OutputDir); err != nil {
		p.transition(log, StateFailed)
		return nil, &StageError{Stage: StagePlan, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	log.Info().
		Str("input", opts.Input).
		Str("output_dir", opts.OutputDir).
		Stringer("range", opts.Range).
		Float64("clip_length", opts.ClipLength).
		Bool("retain", opts.Retain).
		Msg("starting segmentation pipeline")

	artifacts := newTracker()
	res, err := p.run(ctx, log, opts, artifacts)
	if err != nil {
		p.transition(log, StateFailed)
	} else {
		p.transition(log, StateDone)
	}

	p.cleanup(log, artifacts, opts.Retain)

	if err != nil {
		logFailure(log, err)
		return nil, err
	}

	res.RunID = runID
	res.Retained = opts.Retain
	if !opts.Retain && opts.MusicFileName == "" {
		res.Music = ""
	}
	p.logResult(log, res)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, opts Options, artifacts *tracker) (*Result, error) {
	stem := util.Stem(opts.Input)
	ext := containerExt(opts.Input)

	// Stage 1: probe the source
	duration, err := p.media.ProbeDuration(ctx, opts.Input)
	if err != nil {
		return nil, &StageError{Stage: StageProbe, Err: err}
	}
	if duration <= 0 {
		return nil, &StageError{Stage: StageProbe, Err: fmt.Errorf("%s has no playable duration", opts.Input)}
	}
	if opts.Range.Start >= duration {
		return nil, &StageError{Stage: StageProbe, Err: fmt.Errorf("%w: trim start %s is not before source end %s",
			timerange.ErrMalformedTimecode, util.FormatSeconds(opts.Range.Start), util.FormatSeconds(duration))}
	}
	log.Info().Float64("duration", duration).Msg("source probed")
	p.transition(log, StateProbed)

	// Stage 2: trim
	working := opts.Input
	if needsTrim(opts.Range) {
		working, duration, err = p.trim(ctx, log, opts, artifacts, filepath.Join(opts.OutputDir, stem+"_trimmed"+ext))
		if err != nil {
			return nil, err
		}
	}
	p.transition(log, StateTrimmed)

	// Stage 3: background music
	musicName := opts.MusicFileName
	if musicName == "" {
		musicName = stem + "_music"
	}
	music, err := p.composer.Compose(ctx, opts.MusicDir, duration, filepath.Join(opts.OutputDir, musicName))
	if err != nil {
		return nil, &StageError{Stage: StageCompose, Err: err}
	}
	if music != "" {
		if opts.MusicFileName != "" {
			artifacts.add(kindNamedMusic, music)
		} else {
			artifacts.add(kindIntermediate, music)
		}
		p.transition(log, StateMusicComposed)

		// Stage 4: mix
		working, duration, err = p.mix(ctx, log, opts, artifacts, working, music, filepath.Join(opts.OutputDir, stem+"_with_music"+ext))
		if err != nil {
			return nil, err
		}
		p.transition(log, StateMixed)
	}

	// Stage 5: plan segments
	segments, filters, size, err := p.plan(ctx, log, opts, artifacts, working, duration, ext)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("segments", len(segments)).
		Float64("duration", duration).
		Int("width", size.Width).
		Int("height", size.Height).
		Int("filters", len(filters)).
		Msg("segments planned")
	p.transition(log, StateSegmenting)

	// Stage 6: split, synthesize and attach per segment
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, seg := range segments {
		seg := seg
		g.Go(func() error {
			return p.segment(gctx, log, opts, artifacts, working, seg, filters, size)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Duration: duration,
		Segments: segments,
		Music:    music,
	}, nil
}

func (p *Pipeline) trim(ctx context.Context, log zerolog.Logger, opts Options, artifacts *tracker, output string) (string, float64, error) {
	artifacts.add(kindIntermediate, output)

	err := p.media.Trim(ctx, opts.Input, output, ffmpeg.TrimOptions{
		Start:    opts.Range.Start,
		Duration: opts.Range.Duration,
		Precise:  opts.Precise,
		Encode:   opts.Encode,
	})
	if err != nil {
		return "", 0, &StageError{Stage: StageTrim, Err: err}
	}

	duration, err := p.media.ProbeDuration(ctx, output)
	if err != nil {
		return "", 0, &StageError{Stage: StageProbe, Err: err}
	}

	log.Info().
		Str("output", output).
		Float64("duration", duration).
		Msg("source trimmed")
	return output, duration, nil
}

func (p *Pipeline) mix(ctx context.Context, log zerolog.Logger, opts Options, artifacts *tracker, video, music, output string) (string, float64, error) {
	artifacts.add(kindIntermediate, output)

	if err := p.media.MixBackground(ctx, video, music, output, ffmpeg.MixOptions{Gain: opts.Gain}); err != nil {
		return "", 0, &StageError{Stage: StageMix, Err: err}
	}

	duration, err := p.media.ProbeDuration(ctx, output)
	if err != nil {
		return "", 0, &StageError{Stage: StageProbe, Err: err}
	}

	log.Info().
		Str("output", output).
		Float64("duration", duration).
		Float64("gain", opts.Gain).
		Msg("background music mixed")
	return output, duration, nil
}

// plan lays out segments, resolves and checks every output path, and builds
// the shared filter chain. No segment is cut before this succeeds.
func (p *Pipeline) plan(ctx context.Context, log zerolog.Logger, opts Options, artifacts *tracker, working string, duration float64, ext string) ([]clips.Segment, []string, ffmpeg.Resolution, error) {
	size, err := p.media.ProbeResolution(ctx, working)
	if err != nil {
		return nil, nil, ffmpeg.Resolution{}, &StageError{Stage: StageProbe, Err: err}
	}
	if opts.Transpose != nil && overlays.SwapsDimensions(*opts.Transpose) {
		size = size.Swapped()
	}

	segments, err := clips.Plan(duration, opts.ClipLength)
	if err != nil {
		return nil, nil, size, &StageError{Stage: StagePlan, Err: err}
	}

	namer, err := clips.NewNamer(opts.OutputDir, opts.VideoTemplate, opts.ThumbnailTemplate, ext)
	if err != nil {
		return nil, nil, size, &StageError{Stage: StagePlan, Err: err}
	}
	reserved := append([]string{opts.Input}, artifacts.paths(kindIntermediate, kindNamedMusic)...)
	if err := namer.Assign(segments, reserved...); err != nil {
		return nil, nil, size, &StageError{Stage: StagePlan, Err: err}
	}

	fb := ffmpeg.NewFilterBuilder().
		Transpose(opts.Transpose).
		Overlay(opts.Overlay, opts.FontDirs)
	filters, err := fb.BuildAll()
	if err != nil {
		return nil, nil, size, &StageError{Stage: StagePlan, Err: err}
	}
	for _, warn := range fb.Warnings() {
		log.Warn().Err(warn).Msg("overlay font substituted")
	}

	return segments, filters, size, nil
}

func (p *Pipeline) segment(ctx context.Context, log zerolog.Logger, opts Options, artifacts *tracker, working string, seg clips.Segment, filters []string, size ffmpeg.Resolution) error {
	log = log.With().Int("segment", seg.Index).Logger()

	artifacts.add(kindSegment, seg.VideoPath)
	err := p.media.Split(ctx, working, seg.VideoPath, ffmpeg.SplitOptions{
		Start:   seg.Start,
		Length:  seg.Length,
		Filters: filters,
		Precise: opts.Precise,
		Encode:  opts.Encode,
	})
	if err != nil {
		return &StageError{Stage: StageSplit, Segment: seg.Index, Err: err}
	}

	artifacts.add(kindThumbnail, seg.ThumbnailPath)
	if err := p.thumbs.Synthesize(seg.Name, size.Width, size.Height, opts.ThumbnailFont, seg.ThumbnailPath); err != nil {
		return &StageError{Stage: StageThumbnail, Segment: seg.Index, Err: err}
	}

	if err := p.media.AttachThumbnail(ctx, seg.VideoPath, seg.ThumbnailPath, seg.FinalPath); err != nil {
		// A partial final clip is never kept, whatever the retention policy.
		if failed := util.CleanupFiles(seg.FinalPath); len(failed) > 0 {
			log.Warn().Strs("paths", failed).Msg("failed to remove partial clip")
		}
		return &StageError{Stage: StageAttach, Segment: seg.Index, Err: err}
	}
	artifacts.add(kindFinal, seg.FinalPath)

	// The pre-thumbnail cut is no longer needed.
	if failed := util.CleanupFiles(seg.VideoPath); len(failed) > 0 {
		log.Warn().Strs("paths", failed).Msg("failed to remove segment intermediate")
	}

	log.Info().
		Str("name", seg.Name).
		Float64("start", seg.Start).
		Float64("expected", seg.Expected).
		Str("size", humanize.Bytes(uint64(util.FileSize(seg.FinalPath)))).
		Msg("segment complete")
	return nil
}

// cleanup removes pre-thumbnail cuts always, and everything else the run
// produced unless outputs are retained.
func (p *Pipeline) cleanup(log zerolog.Logger, artifacts *tracker, retain bool) {
	remove := artifacts.paths(kindSegment)
	if !retain {
		remove = append(remove, artifacts.paths(kindIntermediate, kindThumbnail, kindFinal)...)
	}

	failed := util.CleanupFiles(remove...)
	for _, path := range failed {
		log.Warn().Str("path", path).Msg("failed to remove artifact")
	}

	log.Debug().
		Int("removed", len(remove)-len(failed)).
		Bool("retain", retain).
		Msg("cleanup complete")
}

// logFailure records the failing command at debug. The error itself is
// reported once by the caller.
func logFailure(log zerolog.Logger, err error) {
	event := log.Debug().Err(err)
	var te *ffmpeg.TranscodeError
	if errors.As(err, &te) {
		event = event.Str("command", te.Command()).Str("stderr", te.FullStderr())
	}
	event.Msg("pipeline failed")
}

func (p *Pipeline) logResult(log zerolog.Logger, res *Result) {
	if !res.Retained {
		log.Info().
			Int("segments", len(res.Segments)).
			Msg("pipeline complete, outputs discarded (no naming template or retain disabled)")
		return
	}

	var total int64
	for _, path := range res.Finals() {
		total += util.FileSize(path)
	}
	log.Info().
		Int("segments", len(res.Segments)).
		Str("total_size", humanize.Bytes(uint64(total))).
		Msg("pipeline complete")
}

func validate(opts *Options) error {
	if opts.Input == "" {
		return errors.New("input path cannot be empty")
	}
	if !util.FileExists(opts.Input) {
		return fmt.Errorf("input %s does not exist", opts.Input)
	}
	if opts.OutputDir == "" {
		return errors.New("output directory cannot be empty")
	}
	if opts.ClipLength <= 0 {
		return fmt.Errorf("clip length %v must be positive", opts.ClipLength)
	}
	if opts.Gain < 0 || opts.Gain > 1 {
		return fmt.Errorf("background gain %v out of range 0.0-1.0", opts.Gain)
	}
	if opts.VideoTemplate == "" {
		opts.VideoTemplate = clips.DefaultVideoTemplate(util.Stem(opts.Input))
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return nil
}

// needsTrim reports whether r selects less than the whole source.
func needsTrim(r timerange.TimeRange) bool {
	return r.Start > 0 || r.HasEnd()
}

func containerExt(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return ext
	}
	return ".mp4"
}
