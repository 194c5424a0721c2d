package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ivlev/qrcast/internal/ffmpeg"
	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/workspace"
)

type InsufficientInputsError struct {
	Count int
}

func (e *InsufficientInputsError) Error() string {
	return fmt.Sprintf("concatenation needs at least 2 videos, got %d", e.Count)
}

// ConcatError keeps both engine streams, mismatches only show up there.
type ConcatError struct {
	Inputs []string
	Engine *ffmpeg.EngineError
}

func (e *ConcatError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "concatenation of %d videos failed with exit code %d", len(e.Inputs), e.Engine.ExitCode)
	if out := strings.TrimSpace(e.Engine.Stdout); out != "" {
		b.WriteString("\nstdout: ")
		b.WriteString(out)
	}
	if diag := e.Engine.Diagnostic(); diag != "" {
		b.WriteString("\nstderr: ")
		b.WriteString(diag)
	}
	return b.String()
}

func (e *ConcatError) Unwrap() error { return e.Engine }

func (e *ConcatError) ExitCode() int  { return e.Engine.ExitCode }
func (e *ConcatError) Stdout() string { return e.Engine.Stdout }
func (e *ConcatError) Stderr() string { return e.Engine.Stderr }

// EscapeManifestPath quotes p for the concat demuxer's list grammar.
// Inside single quotes everything is literal, so only the quote itself
// needs escaping: it is closed, written as \', and reopened.
// Backslashes are left as they are on purpose. ffmpeg reads them
// literally inside single quotes, and escaping them would double every
// backslash in the path.
func EscapeManifestPath(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

func WriteManifest(w io.Writer, paths []string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "file %s\n", EscapeManifestPath(abs)); err != nil {
			return err
		}
	}
	return nil
}

// Concatenate joins inputs with stream copy. Mismatched inputs surface as
// a *ConcatError.
func (e *FFmpegEncoder) Concatenate(ctx context.Context, inputs []media.Artifact, output string) (media.Artifact, error) {
	if len(inputs) < 2 {
		return media.Artifact{}, &InsufficientInputsError{Count: len(inputs)}
	}
	out, err := media.New(output, media.KindVideo)
	if err != nil {
		return media.Artifact{}, err
	}
	if err := requireInputs(inputs...); err != nil {
		return media.Artifact{}, err
	}

	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}

	manifest, release, err := workspace.TempFile(filepath.Dir(out.Path), ".concat-*.txt")
	if err != nil {
		return media.Artifact{}, fmt.Errorf("create concat manifest: %w", err)
	}
	defer release()

	if err := WriteManifest(manifest, paths); err != nil {
		return media.Artifact{}, fmt.Errorf("write concat manifest: %w", err)
	}
	if err := manifest.Close(); err != nil {
		return media.Artifact{}, fmt.Errorf("write concat manifest: %w", err)
	}

	e.log.WithField("inputs", paths).Info("concatenating videos")

	err = e.run(ctx, concatArgs(manifest.Name(), out), out)
	if err != nil {
		var engineErr *ffmpeg.EngineError
		if errors.As(err, &engineErr) {
			return media.Artifact{}, &ConcatError{Inputs: paths, Engine: engineErr}
		}
		return media.Artifact{}, err
	}

	e.log.WithField("output", out.Path).Info("concatenation complete")
	return out, nil
}

func concatArgs(manifest string, out media.Artifact) []string {
	args := baseArgs()
	return append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		out.Path,
	)
}
