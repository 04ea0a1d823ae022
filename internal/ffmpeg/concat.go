package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Inputs []string
	Output string
	// TempDir holds the playlist file; empty means os.TempDir().
	TempDir string
}

// Concat joins inputs in order with the concat demuxer, copying streams.
// The playlist file is removed on every exit path.
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Msg("concatenating")

	concatFile, err := writeConcatFile(opts.TempDir, opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	err = e.Run(ctx, RunOptions{
		Args:   ConcatArgs(concatFile, opts.Output),
		Output: opts.Output,
	})
	if err != nil {
		return fmt.Errorf("concat failed: %w", err)
	}
	return nil
}

// ConcatArgs builds the ffmpeg arguments for Concat (without the executor's base args).
func ConcatArgs(listFile, output string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
}

// writeConcatFile generates a playlist for the concat demuxer with absolute paths
func writeConcatFile(dir string, inputs []string) (path string, err error) {
	tmpFile, err := os.CreateTemp(dir, "clipsplit-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := tmpFile.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(tmpFile.Name())
		}
	}()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", quoteConcatPath(absPath)); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}

// quoteConcatPath escapes single quotes for a single-quoted concat entry.
func quoteConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
