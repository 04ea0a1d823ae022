package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolUnavailable is returned when ffmpeg or ffprobe cannot be invoked.
	ErrToolUnavailable = errors.New("external tool unavailable")
	// ErrEmptyOutput is returned when a command exits cleanly but leaves no usable output.
	ErrEmptyOutput = errors.New("output file missing or empty")
)

// TranscodeError is returned when an ffmpeg invocation fails.
type TranscodeError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

// Error implements error.
func (e *TranscodeError) Error() string {
	tail := lastLines(e.Stderr, 3)
	if tail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, tail)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying error.
func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// FullStderr returns the complete stderr output.
func (e *TranscodeError) FullStderr() string {
	return e.Stderr
}

// Command returns the command that was executed.
func (e *TranscodeError) Command() string {
	return e.Tool + " " + strings.Join(e.Args, " ")
}

// ProbeError is returned when ffprobe fails or its output has the wrong shape.
type ProbeError struct {
	Path   string
	Field  string // "duration" or "resolution"
	Stderr string
	Err    error
}

// Error implements error.
func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("ffprobe %s of %s: %v", e.Field, e.Path, e.Err)
	if tail := lastLines(e.Stderr, 2); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// lastLines joins the final n non-blank lines of s.
func lastLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
