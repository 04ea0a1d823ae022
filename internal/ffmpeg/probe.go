package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// durationOutput matches `ffprobe -show_entries format=duration -of json`
type durationOutput struct {
	Format *struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// resolutionOutput matches `ffprobe -select_streams v:0 -show_entries stream=width,height -of json`
type resolutionOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// ProbeDuration returns the container duration of path in seconds.
func (e *Executor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if path == "" {
		return 0, &ProbeError{Field: "duration", Err: errors.New("file path is required")}
	}

	out, err := e.probe(ctx, "duration", path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
	)
	if err != nil {
		return 0, err
	}

	d, err := parseDuration(out)
	if err != nil {
		return 0, &ProbeError{Path: path, Field: "duration", Err: err}
	}
	return d, nil
}

// ProbeResolution returns the frame size of the first video stream of path.
func (e *Executor) ProbeResolution(ctx context.Context, path string) (Resolution, error) {
	if path == "" {
		return Resolution{}, &ProbeError{Field: "resolution", Err: errors.New("file path is required")}
	}

	out, err := e.probe(ctx, "resolution", path,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
	)
	if err != nil {
		return Resolution{}, err
	}

	r, err := parseResolution(out)
	if err != nil {
		return Resolution{}, &ProbeError{Path: path, Field: "resolution", Err: err}
	}
	return r, nil
}

func parseDuration(out []byte) (float64, error) {
	var probe durationOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probe.Format == nil {
		return 0, errors.New("no format section in ffprobe output")
	}

	raw := strings.TrimSpace(probe.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, errors.New("duration not reported")
	}

	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("duration %q is not a number", raw)
	}
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("duration %q is out of range", raw)
	}
	return d, nil
}

func parseResolution(out []byte) (Resolution, error) {
	var probe resolutionOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Resolution{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return Resolution{}, errors.New("no video stream")
	}

	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Resolution{}, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	return Resolution{Width: s.Width, Height: s.Height}, nil
}
