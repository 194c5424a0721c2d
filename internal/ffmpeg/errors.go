package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// EngineError is a failed engine invocation. ExitCode is -1 when the
// process could not be started or was killed by a signal.
type EngineError struct {
	Binary   string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exited with code %d", e.Binary, e.ExitCode)
	if diag := e.Diagnostic(); diag != "" {
		b.WriteString(": ")
		b.WriteString(diag)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *EngineError) Unwrap() error { return e.Err }

// Diagnostic is the engine's stderr with surrounding whitespace trimmed,
// falling back to the start error when nothing was written.
func (e *EngineError) Diagnostic() string {
	if d := strings.TrimSpace(e.Stderr); d != "" {
		return d
	}
	if e.Err != nil && e.ExitCode < 0 {
		return e.Err.Error()
	}
	return ""
}

// CommandLine renders the invocation for logs and reports.
func (e *EngineError) CommandLine() string {
	return e.Binary + " " + strings.Join(e.Args, " ")
}

// AsEngineError unwraps err to an *EngineError.
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	ok := errors.As(err, &engineErr)
	return engineErr, ok
}
