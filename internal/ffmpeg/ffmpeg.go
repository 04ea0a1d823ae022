package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/clipsplit/internal/logging"
	"github.com/kikiluvv/clipsplit/pkg/util"
)

// Executor handles all ffmpeg and ffprobe invocations
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	timeout     time.Duration
}

// ToolInfo describes a resolved external binary.
type ToolInfo struct {
	Name    string
	Path    string
	Version string
}

// New resolves the ffmpeg and ffprobe binaries and creates an executor.
// It does not run them; call Check to verify they are invocable.
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegPath, err := lookup(opts.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}

	ffprobePath, err := lookup(opts.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	return &Executor{
		logger:      logging.Component(logger, "ffmpeg"),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
		timeout:     opts.Timeout,
	}, nil
}

func lookup(configured, fallback string) (string, error) {
	name := configured
	if name == "" {
		name = fallback
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found: %v", ErrToolUnavailable, name, err)
	}
	return path, nil
}

// Check runs both tools with -version and returns what it found.
func (e *Executor) Check(ctx context.Context) ([]ToolInfo, error) {
	tools := []ToolInfo{
		{Name: "ffmpeg", Path: e.ffmpegPath},
		{Name: "ffprobe", Path: e.ffprobePath},
	}

	for i := range tools {
		ctx, cancel := e.withTimeout(ctx)
		out, err := exec.CommandContext(ctx, tools[i].Path, "-version").CombinedOutput()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %s -version: %v: %s", ErrToolUnavailable, tools[i].Path, err, lastLines(string(out), 2))
		}
		first, _, _ := strings.Cut(string(out), "\n")
		tools[i].Version = strings.TrimSpace(first)
	}

	return tools, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// baseArgs are prepended to every ffmpeg invocation. Progress goes to stdout
// so stderr carries only diagnostics.
func (e *Executor) baseArgs() []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-nostats", "-progress", "pipe:1"}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	return args
}

// Run executes ffmpeg with the given arguments and waits for it to exit.
// A non-zero exit, or a missing/empty declared output, is a *TranscodeError
// carrying the captured stderr.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	args := append(e.baseArgs(), opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &TranscodeError{Tool: "ffmpeg", Args: args, Err: fmt.Errorf("%w: %v", ErrToolUnavailable, err)}
	}

	var (
		wg        sync.WaitGroup
		stderrBuf bytes.Buffer
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			stderrBuf.WriteString(line + "\n")
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
			e.logger.Debug().Str("stderr", line).Msg("ffmpeg output")
		}
	}()

	go func() {
		defer wg.Done()
		e.streamProgress(stdout, opts.ProgressHandler)
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return &TranscodeError{Tool: "ffmpeg", Args: args, Stderr: stderrBuf.String(), Err: err}
	}

	if opts.Output != "" {
		if err := util.NonEmptyFile(opts.Output); err != nil {
			return &TranscodeError{
				Tool:   "ffmpeg",
				Args:   args,
				Stderr: stderrBuf.String(),
				Err:    fmt.Errorf("%w: %v", ErrEmptyOutput, err),
			}
		}
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamProgress parses -progress key=value blocks and calls handler once per block
func (e *Executor) streamProgress(r io.Reader, handler ProgressFunc) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			progressData.Frame, _ = strconv.Atoi(value)
		case "fps":
			progressData.FPS, _ = strconv.ParseFloat(value, 64)
		case "bitrate":
			progressData.Bitrate = value
		case "out_time_us", "out_time_ms":
			// Both keys are reported in microseconds.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				progressData.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			progressData.Speed = value
		case "progress":
			if handler != nil {
				handler(progressData)
			} else {
				e.logger.Debug().
					Dur("out_time", progressData.OutTime).
					Str("speed", progressData.Speed).
					Msg("ffmpeg progress")
			}
			progressData = &Progress{}
		}
	}
}

// probe runs ffprobe and returns stdout. Failures are *ProbeError.
func (e *Executor) probe(ctx context.Context, field, path string, args ...string) ([]byte, error) {
	args = append(args, path)

	e.logger.Debug().
		Str("cmd", "ffprobe").
		Strs("args", args).
		Msg("executing ffprobe")

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			err = fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		return nil, &ProbeError{Path: path, Field: field, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}
