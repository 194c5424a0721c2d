// Package report records what a pipeline run did: each stage, how long it
// took, and the artifact it left behind.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/workspace"
)

type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

type Artifact struct {
	Path  string     `yaml:"path"`
	Kind  media.Kind `yaml:"kind"`
	Bytes uint64     `yaml:"bytes"`
	Size  string     `yaml:"size"`
	// MediaDuration is the probed container duration in seconds, 0 for
	// images or when probing failed.
	MediaDuration float64 `yaml:"media_duration,omitempty"`
}

type Stage struct {
	Name     string    `yaml:"name"`
	Status   Status    `yaml:"status"`
	Started  time.Time `yaml:"started"`
	Elapsed  string    `yaml:"elapsed"`
	Artifact *Artifact `yaml:"artifact,omitempty"`
	Error    string    `yaml:"error,omitempty"`
}

type Report struct {
	RunID       string    `yaml:"run_id"`
	State       string    `yaml:"state"`
	FailedStage string    `yaml:"failed_stage,omitempty"`
	Error       string    `yaml:"error,omitempty"`
	Started     time.Time `yaml:"started"`
	Finished    time.Time `yaml:"finished,omitempty"`
	Elapsed     string    `yaml:"elapsed,omitempty"`
	OutputDir   string    `yaml:"output_dir,omitempty"`
	Encoder     string    `yaml:"video_encoder,omitempty"`
	Warnings    []string  `yaml:"warnings,omitempty"`
	Removed     []string  `yaml:"removed_intermediates,omitempty"`
	Stages      []Stage   `yaml:"stages"`
}

func New(runID string) *Report {
	return &Report{RunID: runID, Started: time.Now()}
}

// Describe turns a produced artifact into its report entry.
func Describe(a media.Artifact, duration float64) *Artifact {
	size := a.Size()
	return &Artifact{
		Path:          a.Path,
		Kind:          a.Kind,
		Bytes:         size,
		Size:          humanize.Bytes(size),
		MediaDuration: duration,
	}
}

// Record appends a finished stage. A nil err marks it done.
func (r *Report) Record(name string, started time.Time, artifact *Artifact, err error) {
	elapsed := time.Since(started)
	st := Stage{
		Name:     name,
		Status:   StatusDone,
		Started:  started,
		Elapsed:  formatElapsed(elapsed),
		Artifact: artifact,
	}
	if err != nil {
		st.Status = StatusFailed
		st.Error = err.Error()
	}
	r.Stages = append(r.Stages, st)
}

func (r *Report) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Finish stamps the terminal state. failedStage is empty on success.
func (r *Report) Finish(state, failedStage string, err error) {
	r.State = state
	r.FailedStage = failedStage
	if err != nil {
		r.Error = err.Error()
	}
	r.Finished = time.Now()
	r.Elapsed = formatElapsed(r.Finished.Sub(r.Started))
}

// Final is the artifact of the last successful stage, nil when none.
func (r *Report) Final() *Artifact {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Status == StatusDone && r.Stages[i].Artifact != nil {
			return r.Stages[i].Artifact
		}
	}
	return nil
}

func formatElapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// Write saves r as YAML at path, replacing any previous report atomically.
func Write(r *Report, path string) error {
	return workspace.WriteFileAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	})
}

func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
