// Package ffmpeg runs the transcoding engine as a child process and turns
// non-zero exits into *EngineError values carrying the full diagnostic.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/qrcast/internal/logging"
)

// Result holds the captured output of a successful invocation.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes one engine command line. Implementations must return an
// *EngineError for any failure of the command itself.
type Runner interface {
	Run(ctx context.Context, args []string) (Result, error)
}

// Exec runs a binary on the local machine.
type Exec struct {
	Binary string
	// Tee, when set, receives stderr in real time in addition to capture.
	Tee io.Writer
	log *logrus.Entry
}

func NewExec(binary string, log logrus.FieldLogger) *Exec {
	if log == nil {
		log = logging.Discard()
	}
	return &Exec{Binary: binary, log: logging.Component(log, "ffmpeg")}
}

// Run blocks until the process exits. No timeout is applied; ctx is only
// cancelled when the whole run is being torn down.
func (e *Exec) Run(ctx context.Context, args []string) (Result, error) {
	e.log.Debugln(e.Binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if e.Tee != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.Tee)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	engineErr := &EngineError{
		Binary:   e.Binary,
		Args:     args,
		ExitCode: -1,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		engineErr.ExitCode = exitErr.ExitCode()
	}
	e.log.WithField("exit_code", engineErr.ExitCode).Error("engine invocation failed")
	return res, engineErr
}
