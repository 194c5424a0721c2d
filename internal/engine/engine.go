package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/qrcast/internal/config"
	"github.com/ivlev/qrcast/internal/effects"
	"github.com/ivlev/qrcast/internal/ffmpeg"
	"github.com/ivlev/qrcast/internal/logging"
	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/probe"
	"github.com/ivlev/qrcast/internal/qr"
	"github.com/ivlev/qrcast/internal/report"
	"github.com/ivlev/qrcast/internal/system"
	"github.com/ivlev/qrcast/internal/video"
	"github.com/ivlev/qrcast/internal/workspace"
)

// State is a step of the run; any failure moves straight to StateFailed.
type State string

const (
	StateInit           State = "init"
	StateValidateInputs State = "validate_inputs"
	StateBuildQR        State = "build_qr"
	StateOverlayImage   State = "overlay_image"
	StateMixAudio       State = "mix_audio"
	StateConcatenate    State = "concatenate"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

type QRBuilder interface {
	Build(s qr.Spec, outputPath, logoPath string) (media.Artifact, error)
}

type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Info, error)
	ProbeAll(ctx context.Context, paths []string) ([]*probe.Info, error)
}

// Deps are the collaborators a Pipeline drives. Prober may be nil.
type Deps struct {
	QR      QRBuilder
	Encoder video.Encoder
	Prober  Prober
	Tools   []string

	EncoderName string
	// SelectEncoder runs once validation has passed and replaces EncoderName.
	SelectEncoder func(ctx context.Context) string
}

type Pipeline struct {
	cfg   *config.Config
	deps  Deps
	log   *logrus.Entry
	runID string
	state State

	freeSpace func(ctx context.Context, dir string) (uint64, error)
}

func New(cfg *config.Config, deps Deps, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logging.Discard()
	}
	runID := uuid.NewString()
	return &Pipeline{
		cfg:       cfg,
		deps:      deps,
		log:       logging.Component(log, "engine").WithField("run_id", runID),
		runID:     runID,
		state:     StateInit,
		freeSpace: system.FreeSpace,
	}
}

func (p *Pipeline) RunID() string { return p.runID }
func (p *Pipeline) State() State  { return p.state }

func (p *Pipeline) enter(s State) {
	p.log.WithField("state", s).Debugf("%s -> %s", p.state, s)
	p.state = s
}

// Run executes the job. The returned report is never nil; failures are
// *StageError.
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(p.runID)
	rep.Encoder = p.deps.EncoderName

	p.enter(StateValidateInputs)
	start := time.Now()
	if err := p.validate(); err != nil {
		rep.Record(string(StateValidateInputs), start, nil, err)
		return rep, p.fail(rep, StateValidateInputs, err, false)
	}

	outDir, err := workspace.EnsureDir(p.cfg.OutputDir)
	if err != nil {
		rep.Record(string(StateValidateInputs), start, nil, err)
		return rep, p.fail(rep, StateValidateInputs, err, false)
	}
	unlock, err := workspace.Lock(outDir)
	if err != nil {
		rep.Record(string(StateValidateInputs), start, nil, err)
		return rep, p.fail(rep, StateValidateInputs, err, false)
	}
	defer func() {
		if err := unlock(); err != nil {
			p.log.WithError(err).Warn("failed to release output directory lock")
		}
	}()
	rep.OutputDir = outDir
	p.log.WithField("output_dir", outDir).Info("output directory ready")
	p.checkFreeSpace(ctx, outDir, rep)
	if p.deps.SelectEncoder != nil {
		rep.Encoder = p.deps.SelectEncoder(ctx)
	}
	rep.Record(string(StateValidateInputs), start, nil, nil)

	final, err := p.runStages(ctx, rep)
	if err != nil {
		var stageErr *StageError
		errors.As(err, &stageErr)
		return rep, p.fail(rep, stageErr.Stage, stageErr.Err, true)
	}

	p.enter(StateDone)
	if !p.cfg.KeepArtifacts {
		p.removeIntermediates(rep)
	}
	rep.Finish(string(StateDone), "", nil)
	p.writeReport(rep)

	p.log.WithFields(logrus.Fields{
		"output": final.Path,
		"size":   humanize.Bytes(final.Size()),
	}).Info("pipeline complete")
	return rep, nil
}

func (p *Pipeline) runStages(ctx context.Context, rep *report.Report) (media.Artifact, error) {
	cfg := p.cfg

	spec := qr.Spec{Data: cfg.URL, Scale: cfg.QRScale, Border: cfg.QRBorder}
	qrImage, err := p.stage(ctx, rep, StateBuildQR, func() (media.Artifact, error) {
		return p.deps.QR.Build(spec, cfg.QRImagePath(), cfg.LogoPath())
	})
	if err != nil {
		return media.Artifact{}, err
	}

	video1, err := media.New(cfg.Video1Path(), media.KindVideo)
	if err != nil {
		return media.Artifact{}, &StageError{Stage: StateOverlayImage, Err: err}
	}
	pos := effects.Position{X: cfg.OverlayX, Y: cfg.OverlayY}
	overlaid, err := p.stage(ctx, rep, StateOverlayImage, func() (media.Artifact, error) {
		return p.deps.Encoder.OverlayImage(ctx, video1, qrImage, cfg.OverlayVideoPath(), pos)
	})
	if err != nil {
		return media.Artifact{}, err
	}

	audio, err := media.New(cfg.AudioPath(), media.KindAudio)
	if err != nil {
		return media.Artifact{}, &StageError{Stage: StateMixAudio, Err: err}
	}
	gains := effects.Gains{Video: cfg.VideoGain, Overlay: cfg.OverlayGain}
	mixed, err := p.stage(ctx, rep, StateMixAudio, func() (media.Artifact, error) {
		return p.deps.Encoder.MixAudio(ctx, overlaid, audio, cfg.MixedVideoPath(), gains)
	})
	if err != nil {
		return media.Artifact{}, err
	}

	video2, err := media.New(cfg.Video2Path(), media.KindVideo)
	if err != nil {
		return media.Artifact{}, &StageError{Stage: StateConcatenate, Err: err}
	}
	inputs := []media.Artifact{mixed, video2}
	return p.stage(ctx, rep, StateConcatenate, func() (media.Artifact, error) {
		p.checkCompatibility(ctx, inputs, rep)
		return p.deps.Encoder.Concatenate(ctx, inputs, cfg.FinalVideoPath())
	})
}

func (p *Pipeline) stage(ctx context.Context, rep *report.Report, s State, fn func() (media.Artifact, error)) (media.Artifact, error) {
	p.enter(s)
	start := time.Now()

	out, err := fn()
	if err != nil {
		rep.Record(string(s), start, nil, err)
		return media.Artifact{}, &StageError{Stage: s, Err: err}
	}

	rep.Record(string(s), start, report.Describe(out, p.mediaDuration(ctx, out)), nil)
	p.log.WithFields(logrus.Fields{
		"stage":   s,
		"output":  out.Path,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("stage complete")
	return out, nil
}

func (p *Pipeline) fail(rep *report.Report, s State, err error, persist bool) error {
	p.enter(StateFailed)
	rep.Finish(string(StateFailed), string(s), err)
	if persist {
		p.writeReport(rep)
	}

	entry := p.log.WithField("stage", s).WithError(err)
	if engineErr, ok := ffmpeg.AsEngineError(err); ok {
		entry = entry.WithFields(logrus.Fields{
			"exit_code": engineErr.ExitCode,
			"command":   engineErr.CommandLine(),
		})
	}
	entry.Error("pipeline failed")
	return &StageError{Stage: s, Err: err}
}

// validate creates nothing.
func (p *Pipeline) validate() error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, in := range p.cfg.Inputs() {
		info, err := os.Stat(in.Path)
		if err != nil || info.IsDir() {
			return &MissingInputError{Role: in.Role, Path: in.Path}
		}
		p.log.WithFields(logrus.Fields{
			"role": in.Role,
			"path": in.Path,
			"size": humanize.Bytes(uint64(info.Size())),
		}).Debug("input found")
	}
	if len(p.deps.Tools) > 0 {
		resolved, err := system.CheckTools(p.deps.Tools...)
		if err != nil {
			return err
		}
		p.log.WithField("tools", resolved).Debug("tools resolved")
	}
	return nil
}

func (p *Pipeline) checkFreeSpace(ctx context.Context, dir string, rep *report.Report) {
	if p.cfg.MinFreeSpaceMB == 0 {
		return
	}
	free, err := p.freeSpace(ctx, dir)
	if err != nil {
		p.log.WithError(err).Debug("free space check skipped")
		return
	}
	if need := p.cfg.MinFreeSpaceMB * humanize.MiByte; free < need {
		rep.Warn("only %s free in %s, %s recommended", humanize.IBytes(free), dir, humanize.IBytes(need))
		p.log.WithFields(logrus.Fields{
			"free": humanize.IBytes(free),
			"want": humanize.IBytes(need),
		}).Warn("low disk space in output directory")
	}
}

// checkCompatibility only warns, ffmpeg decides.
func (p *Pipeline) checkCompatibility(ctx context.Context, inputs []media.Artifact, rep *report.Report) {
	if p.deps.Prober == nil {
		return
	}
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}
	infos, err := p.deps.Prober.ProbeAll(ctx, paths)
	if err != nil {
		p.log.WithError(err).Warn("could not probe concat inputs")
		return
	}
	for _, m := range probe.Compare(infos) {
		rep.Warn("%s", m)
		p.log.WithFields(logrus.Fields{
			"path":  m.Path,
			"field": m.Field,
			"want":  m.Want,
			"got":   m.Got,
		}).Warn("concat inputs differ, stream copy may fail")
	}
}

func (p *Pipeline) mediaDuration(ctx context.Context, a media.Artifact) float64 {
	if p.deps.Prober == nil || a.Kind == media.KindImage {
		return 0
	}
	info, err := p.deps.Prober.Probe(ctx, a.Path)
	if err != nil {
		p.log.WithError(err).WithField("path", a.Path).Debug("duration probe failed")
		return 0
	}
	return info.Duration()
}

func (p *Pipeline) removeIntermediates(rep *report.Report) {
	removed, err := workspace.RemoveAll(
		p.cfg.QRImagePath(),
		p.cfg.OverlayVideoPath(),
		p.cfg.MixedVideoPath(),
	)
	rep.Removed = removed
	if err != nil {
		p.log.WithError(err).Warn("failed to remove some intermediates")
	}
}

func (p *Pipeline) writeReport(rep *report.Report) {
	path := p.cfg.ReportPath()
	if path == "" {
		return
	}
	if err := report.Write(rep, path); err != nil {
		p.log.WithError(err).WithField("path", path).Warn("failed to write run report")
		return
	}
	p.log.WithField("path", path).Debug("run report written")
}
