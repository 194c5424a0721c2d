package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/ivlev/qrcast/internal/config"
	"github.com/ivlev/qrcast/internal/effects"
	"github.com/ivlev/qrcast/internal/ffmpeg"
	"github.com/ivlev/qrcast/internal/logo"
	"github.com/ivlev/qrcast/internal/media"
	"github.com/ivlev/qrcast/internal/probe"
	"github.com/ivlev/qrcast/internal/qr"
	"github.com/ivlev/qrcast/internal/report"
	"github.com/ivlev/qrcast/internal/video"
	"github.com/ivlev/qrcast/internal/workspace"
)

func produce(path string, kind media.Kind) (media.Artifact, error) {
	if err := os.WriteFile(path, []byte(kind), 0o644); err != nil {
		return media.Artifact{}, err
	}
	return media.New(path, kind)
}

type fakeQR struct {
	err  error
	spec qr.Spec
	logo string
}

func (f *fakeQR) Build(s qr.Spec, outputPath, logoPath string) (media.Artifact, error) {
	f.spec, f.logo = s, logoPath
	if f.err != nil {
		return media.Artifact{}, f.err
	}
	return produce(outputPath, media.KindImage)
}

type fakeEncoder struct {
	calls     []string
	failAt    string
	err       error
	pos       effects.Position
	gains     effects.Gains
	concatIns []string
}

func (f *fakeEncoder) step(name, output string) (media.Artifact, error) {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return media.Artifact{}, f.err
	}
	return produce(output, media.KindVideo)
}

func (f *fakeEncoder) OverlayImage(_ context.Context, _, _ media.Artifact, output string, pos effects.Position) (media.Artifact, error) {
	f.pos = pos
	return f.step("overlay", output)
}

func (f *fakeEncoder) MixAudio(_ context.Context, _, _ media.Artifact, output string, gains effects.Gains) (media.Artifact, error) {
	f.gains = gains
	return f.step("mix", output)
}

func (f *fakeEncoder) Concatenate(_ context.Context, inputs []media.Artifact, output string) (media.Artifact, error) {
	for _, in := range inputs {
		f.concatIns = append(f.concatIns, in.Path)
	}
	return f.step("concat", output)
}

type fakeProber struct {
	infos map[string]*probe.Info
}

func (f fakeProber) Probe(_ context.Context, path string) (*probe.Info, error) {
	if info, ok := f.infos[filepath.Base(path)]; ok {
		return info, nil
	}
	return &probe.Info{Path: path, Format: probe.Format{Duration: "1.5"}}, nil
}

func (f fakeProber) ProbeAll(ctx context.Context, paths []string) ([]*probe.Info, error) {
	var out []*probe.Info
	for _, p := range paths {
		info, _ := f.Probe(ctx, p)
		out = append(out, info)
	}
	return out, nil
}

func newJob(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(root, "input")
	cfg.OutputDir = filepath.Join(root, "output")
	if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, in := range cfg.Inputs() {
		if err := os.WriteFile(in.Path, []byte(in.Role), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func newPipeline(cfg *config.Config, enc *fakeEncoder, q *fakeQR, prober Prober) *Pipeline {
	p := New(cfg, Deps{QR: q, Encoder: enc, Prober: prober, EncoderName: "libx264"}, nil)
	p.freeSpace = func(context.Context, string) (uint64, error) { return 1 << 40, nil }
	return p
}

func TestRunSuccess(t *testing.T) {
	cfg := newJob(t)
	enc := &fakeEncoder{}
	q := &fakeQR{}
	p := newPipeline(cfg, enc, q, fakeProber{})

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p.State() != StateDone || rep.State != string(StateDone) {
		t.Errorf("state = %s / %s", p.State(), rep.State)
	}
	if !slices.Equal(enc.calls, []string{"overlay", "mix", "concat"}) {
		t.Errorf("calls = %v", enc.calls)
	}
	if q.spec.Data != cfg.URL || q.spec.Scale != cfg.QRScale || q.logo != cfg.LogoPath() {
		t.Errorf("qr built with %+v, logo %s", q.spec, q.logo)
	}
	if enc.pos.X != "main_w-overlay_w-10" || enc.pos.Y != "10" {
		t.Errorf("position = %+v", enc.pos)
	}
	if enc.gains.Video != 1.0 || enc.gains.Overlay != 0.8 {
		t.Errorf("gains = %+v", enc.gains)
	}

	mixed, _ := filepath.Abs(cfg.MixedVideoPath())
	video2, _ := filepath.Abs(cfg.Video2Path())
	if !slices.Equal(enc.concatIns, []string{mixed, video2}) {
		t.Errorf("concat inputs = %v", enc.concatIns)
	}

	for _, path := range []string{cfg.QRImagePath(), cfg.OverlayVideoPath(), cfg.MixedVideoPath(), cfg.FinalVideoPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to be kept: %v", path, err)
		}
	}

	var names []string
	for _, st := range rep.Stages {
		names = append(names, st.Name)
	}
	want := []string{"validate_inputs", "build_qr", "overlay_image", "mix_audio", "concatenate"}
	if !slices.Equal(names, want) {
		t.Errorf("stages = %v, want %v", names, want)
	}
	if final := rep.Final(); final == nil || filepath.Base(final.Path) != cfg.FinalVideo || final.MediaDuration != 1.5 {
		t.Errorf("final = %+v", final)
	}

	saved, err := report.Read(cfg.ReportPath())
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if saved.RunID != p.RunID() || saved.State != "done" || saved.Encoder != "libx264" {
		t.Errorf("saved report = %+v", saved)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, ".qrcast.lock")); !os.IsNotExist(err) {
		t.Error("lock file should be released")
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := newJob(t)
	if err := os.Remove(cfg.Video2Path()); err != nil {
		t.Fatal(err)
	}
	enc := &fakeEncoder{}
	p := newPipeline(cfg, enc, &fakeQR{}, nil)

	_, err := p.Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateValidateInputs {
		t.Fatalf("expected validate_inputs failure, got %v", err)
	}
	var missing *MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	if missing.Role != "video2" || missing.Path != cfg.Video2Path() {
		t.Errorf("missing = %+v", missing)
	}
	if p.State() != StateFailed {
		t.Errorf("state = %s", p.State())
	}
	if len(enc.calls) != 0 {
		t.Error("no stage should run")
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Error("output directory should not be created")
	}
}

func TestRunMissingInputOrder(t *testing.T) {
	cfg := newJob(t)
	for _, path := range []string{cfg.AudioPath(), cfg.LogoPath(), cfg.Video1Path()} {
		os.Remove(path)
	}
	_, err := newPipeline(cfg, &fakeEncoder{}, &fakeQR{}, nil).Run(context.Background())
	var missing *MissingInputError
	if !errors.As(err, &missing) || missing.Role != "video1" {
		t.Fatalf("expected video1 first, got %v", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := newJob(t)
	cfg.QRScale = 0
	_, err := newPipeline(cfg, &fakeEncoder{}, &fakeQR{}, nil).Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateValidateInputs {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "qr_scale") {
		t.Errorf("error lacks field name: %v", err)
	}
}

func TestRunMissingTool(t *testing.T) {
	cfg := newJob(t)
	p := New(cfg, Deps{QR: &fakeQR{}, Encoder: &fakeEncoder{}, Tools: []string{"qrcast-no-such-ffmpeg"}}, nil)
	_, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "qrcast-no-such-ffmpeg") {
		t.Fatalf("expected missing tool error, got %v", err)
	}
}

func TestRunStageFailure(t *testing.T) {
	cfg := newJob(t)
	noAudio := &video.NoAudioStreamError{Path: cfg.OverlayVideoPath()}
	enc := &fakeEncoder{failAt: "mix", err: noAudio}
	p := newPipeline(cfg, enc, &fakeQR{}, nil)

	rep, err := p.Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateMixAudio {
		t.Fatalf("expected mix_audio failure, got %v", err)
	}
	if stageErr.Err != noAudio {
		t.Error("stage error should carry the original error unchanged")
	}
	var target *video.NoAudioStreamError
	if !errors.As(err, &target) {
		t.Error("errors.As should reach the stage error")
	}
	if slices.Contains(enc.calls, "concat") {
		t.Error("concat must not run after a failure")
	}
	for _, path := range []string{cfg.QRImagePath(), cfg.OverlayVideoPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("prior artifact %s should remain: %v", path, err)
		}
	}

	saved, err := report.Read(cfg.ReportPath())
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if saved.State != "failed" || saved.FailedStage != "mix_audio" || !strings.Contains(saved.Error, "no audio stream") {
		t.Errorf("saved report = %+v", saved)
	}
	if rep.Stages[len(rep.Stages)-1].Status != report.StatusFailed {
		t.Error("last stage should be failed")
	}
}

func TestRunQRFailure(t *testing.T) {
	cfg := newJob(t)
	enc := &fakeEncoder{}
	_, err := newPipeline(cfg, enc, &fakeQR{err: &logo.InvalidError{Path: cfg.LogoPath(), Reason: "degenerate"}}, nil).Run(context.Background())

	var invalid *logo.InvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected logo.InvalidError, got %v", err)
	}
	if stageErr := (*StageError)(nil); !errors.As(err, &stageErr) || stageErr.Stage != StateBuildQR {
		t.Errorf("expected build_qr stage, got %v", err)
	}
	if len(enc.calls) != 0 {
		t.Error("encoder should not run")
	}
}

func TestRunEngineFailureDiagnostic(t *testing.T) {
	cfg := newJob(t)
	engineErr := &ffmpeg.EngineError{Binary: "ffmpeg", ExitCode: 1, Stderr: "Input/output error"}
	concatErr := &video.ConcatError{Inputs: []string{"a", "b"}, Engine: engineErr}
	enc := &fakeEncoder{failAt: "concat", err: concatErr}

	_, err := newPipeline(cfg, enc, &fakeQR{}, nil).Run(context.Background())
	got, ok := ffmpeg.AsEngineError(err)
	if !ok || got.Diagnostic() != "Input/output error" {
		t.Fatalf("diagnostic lost: %v", err)
	}
	if !strings.Contains(err.Error(), "concatenate") {
		t.Errorf("stage name missing from %q", err)
	}
}

func TestRunRemovesIntermediates(t *testing.T) {
	cfg := newJob(t)
	cfg.KeepArtifacts = false
	rep, err := newPipeline(cfg, &fakeEncoder{}, &fakeQR{}, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{cfg.QRImagePath(), cfg.OverlayVideoPath(), cfg.MixedVideoPath()} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", path)
		}
	}
	if _, err := os.Stat(cfg.FinalVideoPath()); err != nil {
		t.Errorf("final output missing: %v", err)
	}
	if len(rep.Removed) != 3 {
		t.Errorf("removed = %v", rep.Removed)
	}
}

func TestRunCompatibilityWarnings(t *testing.T) {
	cfg := newJob(t)
	prober := fakeProber{infos: map[string]*probe.Info{
		cfg.MixedVideo: {Streams: []probe.Stream{{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080}}},
		cfg.Video2:     {Streams: []probe.Stream{{CodecType: "video", CodecName: "h264", Width: 1280, Height: 720}}},
	}}
	rep, err := newPipeline(cfg, &fakeEncoder{}, &fakeQR{}, prober).Run(context.Background())
	if err != nil {
		t.Fatalf("mismatch must not fail the run: %v", err)
	}
	if len(rep.Warnings) == 0 || !strings.Contains(strings.Join(rep.Warnings, "\n"), "resolution") {
		t.Errorf("warnings = %v", rep.Warnings)
	}
}

func TestRunLowDiskSpace(t *testing.T) {
	cfg := newJob(t)
	p := newPipeline(cfg, &fakeEncoder{}, &fakeQR{}, nil)
	p.freeSpace = func(context.Context, string) (uint64, error) { return 1 << 20, nil }
	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "free") {
		t.Errorf("warnings = %v", rep.Warnings)
	}
}

func TestRunLocked(t *testing.T) {
	cfg := newJob(t)
	dir, err := workspace.EnsureDir(cfg.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	unlock, err := workspace.Lock(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	enc := &fakeEncoder{}
	_, err = newPipeline(cfg, enc, &fakeQR{}, nil).Run(context.Background())
	if !errors.Is(err, workspace.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(enc.calls) != 0 {
		t.Error("no stage should run while locked")
	}
}

func TestResolveEncoder(t *testing.T) {
	runner := encodersRunner{out: "V....D h264_nvenc"}
	if got := ResolveEncoder(context.Background(), "auto", runner, nil); got != "h264_nvenc" {
		t.Errorf("auto = %s", got)
	}
	if got := ResolveEncoder(context.Background(), "libx264", runner, nil); got != "libx264" {
		t.Errorf("explicit = %s", got)
	}
}

func TestResolveEncoderWarnsOnFallback(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	runner := encodersRunner{err: errors.New("exec: \"ffmpeg\": executable file not found")}

	if got := ResolveEncoder(context.Background(), "auto", runner, log); got != "libx264" {
		t.Errorf("fallback = %s", got)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %v", hook.AllEntries())
	}
	if entry.Data["encoder"] != "libx264" {
		t.Errorf("warning fields = %v", entry.Data)
	}
}

func TestSelectEncoderRunsAfterValidation(t *testing.T) {
	cfg := newJob(t)
	calls := 0
	p := newPipeline(cfg, &fakeEncoder{}, &fakeQR{}, nil)
	p.deps.Tools = []string{"qrcast-no-such-ffmpeg"}
	p.deps.SelectEncoder = func(context.Context) string {
		calls++
		return "h264_nvenc"
	}

	_, err := p.Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateValidateInputs || !strings.Contains(err.Error(), "qrcast-no-such-ffmpeg") {
		t.Fatalf("expected missing tool error, got %v", err)
	}
	if calls != 0 {
		t.Error("encoder detection must wait for validation")
	}
}

func TestSelectEncoderReported(t *testing.T) {
	cfg := newJob(t)
	enc := &fakeEncoder{}
	p := newPipeline(cfg, enc, &fakeQR{}, nil)
	p.deps.SelectEncoder = func(context.Context) string { return "h264_videotoolbox" }

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Encoder != "h264_videotoolbox" {
		t.Errorf("report encoder = %q", rep.Encoder)
	}
}

type encodersRunner struct {
	out string
	err error
}

func (r encodersRunner) Run(context.Context, []string) (ffmpeg.Result, error) {
	return ffmpeg.Result{Stdout: r.out}, r.err
}
