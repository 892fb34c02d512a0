package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dovimux/internal/config"
	"dovimux/internal/domain"
)

// fakeRunner simulates the external tools: every invocation is recorded and
// the file named by the tool's output flag is written, unless the matching
// failOn substring makes the call fail.
type fakeRunner struct {
	calls  [][]string
	failOn string
}

func (f *fakeRunner) Run(_ context.Context, bin string, args ...string) error {
	call := append([]string{bin}, args...)
	f.calls = append(f.calls, call)

	if f.failOn != "" && strings.Contains(strings.Join(call, " "), f.failOn) {
		return fmt.Errorf("%s: %w", bin, domain.ErrExternalTool)
	}
	if out := outputArg(args); out != "" {
		if err := os.WriteFile(out, []byte("data"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, bin string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{bin}, args...))
	return nil, nil
}

// outputArg mirrors how each tool names its output: -o/--output/-out flags,
// or mkvextract's "0:<path>" track slot.
func outputArg(args []string) string {
	for i, a := range args {
		switch a {
		case "-o", "--output", "-out":
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if strings.HasPrefix(a, "0:") && strings.Contains(a, string(os.PathSeparator)) {
			return strings.TrimPrefix(a, "0:")
		}
	}
	return ""
}

func (f *fakeRunner) find(substr string) []string {
	for _, call := range f.calls {
		if strings.Contains(strings.Join(call, " "), substr) {
			return call
		}
	}
	return nil
}

func (f *fakeRunner) argAfter(call []string, flag string) string {
	for i, a := range call {
		if a == flag && i+1 < len(call) {
			return call[i+1]
		}
	}
	return ""
}

type fakeDescriber struct {
	infos map[string]domain.TrackInfo
}

func (f *fakeDescriber) Describe(_ context.Context, path string) (domain.TrackInfo, error) {
	info, ok := f.infos[path]
	if !ok {
		return domain.TrackInfo{}, fmt.Errorf("%s: %w", path, domain.ErrNoVideoTrack)
	}
	return info, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkDirBase = filepath.Join(t.TempDir(), "work")
	return cfg
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("bitstream"), 0o644))
	return path
}

func TestRunInputNotFound(t *testing.T) {
	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{})

	err := p.Run(context.Background(), domain.Job{
		ID:         "j",
		HDRPath:    filepath.Join(t.TempDir(), "missing.mkv"),
		DVPath:     filepath.Join(t.TempDir(), "missing2.mkv"),
		OutputPath: "out.mkv",
	})
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
	assert.Empty(t, runner.calls)
}

func TestRunFrameRateMismatchAbortsBeforeExtraction(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	cfg := testConfig(t)
	runner := &fakeRunner{}
	p := New(cfg, runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 1080, FrameRate: 23.976},
		dv:  {Height: 1080, FrameRate: 24.0},
	}})

	err := p.Run(context.Background(), domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv")})
	require.ErrorIs(t, err, domain.ErrFrameRateMismatch)

	assert.Empty(t, runner.calls, "no extraction may run on mismatched rates")
	_, statErr := os.Stat(cfg.WorkDirBase)
	assert.True(t, os.IsNotExist(statErr), "no temp files may be created")
}

func TestRunFrameRateWithinEpsilonProceeds(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 1080, FrameRate: 23.976, Language: "en"},
		dv:  {Height: 1080, FrameRate: 23.9765},
	}})

	err := p.Run(context.Background(), domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv")})
	require.NoError(t, err)
}

func TestRunEndToEndLetterboxedGrading(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")
	out := filepath.Join(dir, "out.mkv")

	cfg := testConfig(t)
	runner := &fakeRunner{}
	p := New(cfg, runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Width: 3840, Height: 1080, FrameRate: 23.976, TrackID: 1, Format: "hevc", Language: "en"},
		dv:  {Width: 3840, Height: 1078, FrameRate: 23.976, TrackID: 1, Format: "hevc", Language: "en"},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: out}
	require.NoError(t, p.Run(context.Background(), job))

	// Raw inputs skip extraction entirely.
	assert.Nil(t, runner.find("MP4Box"))
	assert.Nil(t, runner.find("mkvextract"))

	audio := runner.find("--no-video")
	require.NotNil(t, audio, "audio/subtitle extraction must run")
	assert.Equal(t, "mkvmerge", audio[0])

	extractRPU := runner.find("extract-rpu")
	require.NotNil(t, extractRPU)
	assert.Contains(t, extractRPU, dv, "rpu comes from the dv elementary stream")

	// Height mismatch of 2 pixels needs a geometry-only RPU edit.
	editor := runner.find("editor")
	require.NotNil(t, editor, "geometry mismatch requires an editor pass")
	editedRPU := runner.argAfter(editor, "-o")
	assert.True(t, strings.HasSuffix(editedRPU, "rpu_edited.bin"))

	inject := runner.find("inject-rpu")
	require.NotNil(t, inject)
	assert.Equal(t, editedRPU, runner.argAfter(inject, "--rpu-in"), "injection must consume the edited rpu")
	assert.Equal(t, hdr, runner.argAfter(inject, "-i"), "raw hdr input is injected directly")

	mux := runner.find("--ui-language")
	require.NotNil(t, mux)
	assert.Equal(t, out, runner.argAfter(mux, "--output"))
	assert.Contains(t, mux, "--default-duration")
	assert.Contains(t, mux, "0:en")

	// Output kept, temp dir gone, inputs untouched.
	assert.FileExists(t, out)
	_, statErr := os.Stat(cfg.WorkDirBase)
	assert.True(t, os.IsNotExist(statErr), "work dir must be cleaned up")
	assert.FileExists(t, hdr)
	assert.FileExists(t, dv)
}

func TestRunNoEditUsesUneditedRPU(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 2160, FrameRate: 23.976, Language: "en"},
		dv:  {Height: 2160, FrameRate: 23.976},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv")}
	require.NoError(t, p.Run(context.Background(), job))

	assert.Nil(t, runner.find("editor"), "matching geometry and zero delay skip the editor")

	inject := runner.find("inject-rpu")
	require.NotNil(t, inject)
	assert.True(t, strings.HasSuffix(runner.argAfter(inject, "--rpu-in"), "rpu.bin"),
		"unedited rpu must flow to injection")
}

func TestRunNegativeDelayEditsRPU(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 2160, FrameRate: 24, Language: "en"},
		dv:  {Height: 2160, FrameRate: 24},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv"), DVDelayMs: -1000}
	require.NoError(t, p.Run(context.Background(), job))

	require.NotNil(t, runner.find("editor"), "delay requires an editor pass")
}

func TestRunStageFailureStillCleansUp(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	cfg := testConfig(t)
	runner := &fakeRunner{failOn: "inject-rpu"}
	p := New(cfg, runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 2160, FrameRate: 23.976, Language: "en"},
		dv:  {Height: 2160, FrameRate: 23.976},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv")}
	err := p.Run(context.Background(), job)
	require.ErrorIs(t, err, domain.ErrExternalTool)

	_, statErr := os.Stat(cfg.WorkDirBase)
	assert.True(t, os.IsNotExist(statErr), "cleanup must run on aborted jobs")
	assert.FileExists(t, hdr)
	assert.FileExists(t, dv)
}

// partialWriteRunner writes the stage output before returning the failure,
// like a tool dying mid-write and leaving a truncated file behind.
type partialWriteRunner struct {
	fakeRunner
}

func (f *partialWriteRunner) Run(ctx context.Context, bin string, args ...string) error {
	call := append([]string{bin}, args...)
	if f.failOn != "" && strings.Contains(strings.Join(call, " "), f.failOn) {
		f.calls = append(f.calls, call)
		if out := outputArg(args); out != "" {
			if err := os.WriteFile(out, []byte("trunc"), 0o644); err != nil {
				return err
			}
		}
		return fmt.Errorf("%s: %w", bin, domain.ErrExternalTool)
	}
	return f.fakeRunner.Run(ctx, bin, args...)
}

func TestRunCleansPartialOutputOfFailedStage(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	cfg := testConfig(t)
	runner := &partialWriteRunner{fakeRunner{failOn: "inject-rpu"}}
	p := New(cfg, runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 2160, FrameRate: 23.976, Language: "en"},
		dv:  {Height: 2160, FrameRate: 23.976},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv")}
	err := p.Run(context.Background(), job)
	require.ErrorIs(t, err, domain.ErrExternalTool)

	// The truncated inject output was never registered as an artifact;
	// cleanup must remove the whole work dir regardless.
	_, statErr := os.Stat(cfg.WorkDirBase)
	assert.True(t, os.IsNotExist(statErr), "work dir must be removed after a mid-write failure")
}

func TestRunKeepTempRetainsArtifacts(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	cfg := testConfig(t)
	runner := &fakeRunner{}
	p := New(cfg, runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 2160, FrameRate: 23.976, Language: "en"},
		dv:  {Height: 2160, FrameRate: 23.976},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv"), KeepTemp: true}
	require.NoError(t, p.Run(context.Background(), job))

	entries, err := os.ReadDir(cfg.WorkDirBase)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "keep-temp must retain intermediate files")
}

func TestRunSameContainerExtractsOnce(t *testing.T) {
	dir := t.TempDir()
	movie := writeInput(t, dir, "movie.mkv")

	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		movie: {Height: 2160, FrameRate: 23.976, TrackID: 1, Language: "en"},
	}})

	job := domain.Job{ID: "j", HDRPath: movie, DVPath: movie, OutputPath: filepath.Join(dir, "out.mkv")}
	require.NoError(t, p.Run(context.Background(), job))

	extractions := 0
	var dvRaw string
	for _, call := range runner.calls {
		if call[0] == "mkvextract" {
			extractions++
			dvRaw = outputArg(call[1:])
		}
	}
	assert.Equal(t, 1, extractions, "a shared container is demuxed once")

	inject := runner.find("inject-rpu")
	require.NotNil(t, inject)
	assert.Equal(t, dvRaw, runner.argAfter(inject, "-i"), "the dv elementary doubles as the hdr stream")
}

func TestRunHDR10PlusInjection(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")
	plus := writeInput(t, dir, "plus.hevc")

	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr:  {Height: 2160, FrameRate: 25, Language: "en"},
		dv:   {Height: 2160, FrameRate: 25},
		plus: {Height: 2160, FrameRate: 25},
	}})

	job := domain.Job{
		ID: "j", HDRPath: hdr, DVPath: dv, HDR10PlusPath: plus,
		OutputPath: filepath.Join(dir, "out.mkv"), HDR10PlusDelayMs: 500,
	}
	require.NoError(t, p.Run(context.Background(), job))

	extract := runner.find("hdr10plus_tool extract")
	require.NotNil(t, extract)
	assert.Contains(t, extract, plus)

	editor := runner.find("hdr10plus_tool editor")
	require.NotNil(t, editor, "a positive delay needs a metadata edit")

	plusInject := runner.find("hdr10plus_tool inject")
	require.NotNil(t, plusInject)
	injected := runner.argAfter(plusInject, "-o")
	assert.True(t, strings.HasSuffix(injected, "hdr10plus_injected.hevc"))

	rpuInject := runner.find("inject-rpu")
	require.NotNil(t, rpuInject)
	assert.Equal(t, injected, runner.argAfter(rpuInject, "-i"),
		"rpu injection must consume the hdr10plus-injected stream")
}

func TestRunWithoutHDR10PlusSkipsThoseStages(t *testing.T) {
	dir := t.TempDir()
	hdr := writeInput(t, dir, "hdr.hevc")
	dv := writeInput(t, dir, "dv.hevc")

	runner := &fakeRunner{}
	p := New(testConfig(t), runner, &fakeDescriber{infos: map[string]domain.TrackInfo{
		hdr: {Height: 2160, FrameRate: 23.976, Language: "en"},
		dv:  {Height: 2160, FrameRate: 23.976},
	}})

	job := domain.Job{ID: "j", HDRPath: hdr, DVPath: dv, OutputPath: filepath.Join(dir, "out.mkv")}
	require.NoError(t, p.Run(context.Background(), job))

	assert.Nil(t, runner.find("hdr10plus_tool"), "no hdr10plus source, no hdr10plus stage")
}

func TestMakeWorkDirAppendsCounterOnCollision(t *testing.T) {
	base := filepath.Join(t.TempDir(), "work")

	first, err := makeWorkDir(base)
	require.NoError(t, err)
	assert.Equal(t, base, first)

	second, err := makeWorkDir(base)
	require.NoError(t, err)
	assert.Equal(t, base+".1", second)

	third, err := makeWorkDir(base)
	require.NoError(t, err)
	assert.Equal(t, base+".2", third)
}
