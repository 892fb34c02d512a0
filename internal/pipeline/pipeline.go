// Package pipeline sequences the demux/extract/edit/inject/mux stages that
// combine an HDR10 source with a Dolby Vision grading of the same picture.
// It is the only component holding cross-stage state; the calculators and
// the extractor are pure given their inputs.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"dovimux/internal/align"
	"dovimux/internal/config"
	"dovimux/internal/domain"
	"dovimux/internal/edit"
	"dovimux/internal/extract"
	"dovimux/internal/log"
	"dovimux/internal/progress"
)

// Frame-based edits desync when the sources run at different rates, so a
// mismatch beyond this tolerance aborts before any extraction happens.
const frameRateEpsilon = 0.001

const (
	stageAudioSubs       = "extract audio/subtitles"
	stageDVVideo         = "extract dv video"
	stageRPU             = "extract rpu"
	stageRPUEdit         = "edit rpu"
	stageHDRVideo        = "extract hdr video"
	stageHDR10Plus       = "extract hdr10plus metadata"
	stageHDR10PlusEdit   = "edit hdr10plus metadata"
	stageHDR10PlusInject = "inject hdr10plus metadata"
	stageRPUInject       = "inject rpu"
	stageMux             = "mux output"
)

// Pipeline runs jobs strictly sequentially, one stage at a time. Stages
// never overlap because each consumes the previous stage's output file.
type Pipeline struct {
	cfg      config.Config
	runner   domain.ToolRunner
	describe domain.Describer
	extract  *extract.Extractor
	logger   zerolog.Logger
}

// New builds a Pipeline from an explicit configuration. All external tool
// locations come from cfg; nothing is looked up globally.
func New(cfg config.Config, runner domain.ToolRunner, describer domain.Describer) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		runner:   runner,
		describe: describer,
		extract:  extract.New(cfg.Tools.MP4Box, cfg.Tools.MKVExtract, runner),
		logger:   log.WithComponent("pipeline"),
	}
}

// Run executes one job to completion. Whatever the outcome, every
// intermediate artifact not marked keep is removed before Run returns.
func (p *Pipeline) Run(ctx context.Context, job domain.Job) error {
	logger := p.logger.With().Str("job", job.ID).Str("output", job.OutputPath).Logger()
	logger.Info().Str("hdr", job.HDRPath).Str("dv", job.DVPath).Msg("processing")

	for _, path := range []string{job.HDRPath, job.DVPath, job.HDR10PlusPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", path, domain.ErrInputNotFound)
		}
	}

	hdrInfo, err := p.describe.Describe(ctx, job.HDRPath)
	if err != nil {
		return err
	}
	dvInfo, err := p.describe.Describe(ctx, job.DVPath)
	if err != nil {
		return err
	}

	if math.Abs(hdrInfo.FrameRate-dvInfo.FrameRate) > frameRateEpsilon {
		return fmt.Errorf("dv %g vs hdr %g: %w", dvInfo.FrameRate, hdrInfo.FrameRate, domain.ErrFrameRateMismatch)
	}

	workDir, err := makeWorkDir(p.cfg.WorkDirBase)
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	st := newJobState(workDir, job.KeepTemp, logger)
	defer st.cleanup()

	return p.runStages(ctx, st, job, hdrInfo, dvInfo, logger)
}

func (p *Pipeline) runStages(ctx context.Context, st *jobState, job domain.Job, hdrInfo, dvInfo domain.TrackInfo, logger zerolog.Logger) error {
	geo := align.ReconcileHeights(hdrInfo.Height, dvInfo.Height)
	if geo.Direction != align.DirectionNone {
		logger.Info().
			Str("adjustment", geo.Direction.String()).
			Int("amount", geo.Amount).
			Int("hdr_height", hdrInfo.Height).
			Int("dv_height", dvInfo.Height).
			Msg("height mismatch")
	}
	delay := align.PlanForDelay(job.DVDelayMs, hdrInfo.FrameRate)
	if job.DVDelayMs != 0 {
		logger.Info().
			Float64("delay_ms", job.DVDelayMs).
			Int("frames", align.FramesForDelay(job.DVDelayMs, hdrInfo.FrameRate)).
			Msg("dolby vision delay")
	}

	// Audio and subtitles travel in a side container until the final mux.
	audioPath := filepath.Join(st.workDir, "audiosubs.mka")
	err := p.runWatched(ctx, stageAudioSubs, job.HDRPath, audioPath, logger, func() error {
		return p.runner.Run(ctx, p.cfg.Tools.MKVMerge, "-o", audioPath, "--no-video", job.HDRPath)
	})
	if err != nil {
		return err
	}
	if !fileNonEmpty(audioPath) {
		return fmt.Errorf("%s: %w", audioPath, domain.ErrExtractionFailed)
	}
	st.add(audioPath, stageAudioSubs, false)

	dvRaw, err := p.extractElementary(ctx, st, stageDVVideo, job.DVPath, dvInfo.TrackID, filepath.Join(st.workDir, "dv.hevc"), logger)
	if err != nil {
		return err
	}

	rpuPath := filepath.Join(st.workDir, "rpu.bin")
	err = p.runWatched(ctx, stageRPU, dvRaw, rpuPath, logger, func() error {
		return p.runner.Run(ctx, p.cfg.Tools.DoviTool, "-m", strconv.Itoa(p.cfg.DoviProfile), "extract-rpu", dvRaw, "-o", rpuPath)
	})
	if err != nil {
		return err
	}
	if !fileNonEmpty(rpuPath) {
		return fmt.Errorf("%s: %w", rpuPath, domain.ErrExtractionFailed)
	}
	st.add(rpuPath, stageRPU, false)

	plan := edit.FromPlans(geo, delay)
	if plan.Needed() {
		rpuPath, err = p.editRPU(ctx, st, plan, rpuPath, logger)
		if err != nil {
			return err
		}
	}

	var hdrRaw string
	if job.HDRPath == job.DVPath {
		// Single hybrid container: the DV elementary stream is the HDR one.
		hdrRaw = dvRaw
	} else {
		hdrRaw, err = p.extractElementary(ctx, st, stageHDRVideo, job.HDRPath, hdrInfo.TrackID, filepath.Join(st.workDir, "hdr10.hevc"), logger)
		if err != nil {
			return err
		}
	}

	if job.HDR10PlusPath != "" {
		hdrRaw, err = p.injectHDR10Plus(ctx, st, job, hdrRaw, logger)
		if err != nil {
			return err
		}
	}

	injectedPath := filepath.Join(st.workDir, "dvhdr.hevc")
	err = p.runWatched(ctx, stageRPUInject, hdrRaw, injectedPath, logger, func() error {
		return p.runner.Run(ctx, p.cfg.Tools.DoviTool, "inject-rpu", "-i", hdrRaw, "--rpu-in", rpuPath, "-o", injectedPath)
	})
	if err != nil {
		return err
	}
	if !fileNonEmpty(injectedPath) {
		return fmt.Errorf("%s: %w", injectedPath, domain.ErrExtractionFailed)
	}
	st.add(injectedPath, stageRPUInject, false)

	err = p.runWatched(ctx, stageMux, injectedPath, job.OutputPath, logger, func() error {
		return p.runner.Run(ctx, p.cfg.Tools.MKVMerge,
			"--ui-language", "en",
			"--no-date",
			"--output", job.OutputPath,
			"--default-duration", "0:"+strconv.FormatFloat(hdrInfo.FrameRate, 'f', -1, 64)+"fps",
			"--language", "0:"+hdrInfo.Language,
			injectedPath,
			audioPath,
		)
	})
	if err != nil {
		return err
	}
	if !fileNonEmpty(job.OutputPath) {
		return fmt.Errorf("%s: %w", job.OutputPath, domain.ErrExtractionFailed)
	}

	logger.Info().Msg("process completed")
	return nil
}

// editRPU runs one editor pass over the unedited RPU and deletes the
// original, returning the edited path.
func (p *Pipeline) editRPU(ctx context.Context, st *jobState, plan edit.Plan, rpuPath string, logger zerolog.Logger) (string, error) {
	doc, err := plan.RPUDocument()
	if err != nil {
		return "", fmt.Errorf("build rpu edit document: %w", err)
	}
	docPath := filepath.Join(st.workDir, "rpu.json")
	if err := os.WriteFile(docPath, doc, 0o644); err != nil {
		return "", fmt.Errorf("write rpu edit document: %w", err)
	}
	st.add(docPath, stageRPUEdit, false)

	logger.Info().Str("stage", stageRPUEdit).Msg("editing rpu metadata")
	editedPath := filepath.Join(st.workDir, "rpu_edited.bin")
	if err := p.runner.Run(ctx, p.cfg.Tools.DoviTool, "editor", "-i", rpuPath, "-o", editedPath, "-j", docPath); err != nil {
		return "", err
	}
	if !fileNonEmpty(editedPath) {
		return "", fmt.Errorf("%s: %w", editedPath, domain.ErrExtractionFailed)
	}
	st.add(editedPath, stageRPUEdit, false)

	// The unedited RPU has no consumer past this point.
	if err := os.Remove(rpuPath); err != nil && !os.IsNotExist(err) {
		logger.Debug().Err(err).Str("path", rpuPath).Msg("remove unedited rpu")
	}
	return editedPath, nil
}

// injectHDR10Plus extracts, optionally edits, and injects HDR10+ dynamic
// metadata into the HDR elementary stream, returning the injected path.
func (p *Pipeline) injectHDR10Plus(ctx context.Context, st *jobState, job domain.Job, hdrRaw string, logger zerolog.Logger) (string, error) {
	info, err := p.describe.Describe(ctx, job.HDR10PlusPath)
	if err != nil {
		return "", err
	}

	raw, err := p.extractElementary(ctx, st, stageHDR10Plus, job.HDR10PlusPath, info.TrackID, filepath.Join(st.workDir, "hdr10plus.hevc"), logger)
	if err != nil {
		return "", err
	}

	metaPath := filepath.Join(st.workDir, "hdr10plus.json")
	if err := p.runner.Run(ctx, p.cfg.Tools.HDR10PlusTool, "extract", raw, "-o", metaPath); err != nil {
		return "", err
	}
	if !fileNonEmpty(metaPath) {
		return "", fmt.Errorf("%s: %w", metaPath, domain.ErrExtractionFailed)
	}
	st.add(metaPath, stageHDR10Plus, false)

	delay := align.PlanForDelay(job.HDR10PlusDelayMs, info.FrameRate)
	plan := edit.FromPlans(align.GeometryPlan{}, delay)
	if plan.Needed() {
		logger.Info().
			Float64("delay_ms", job.HDR10PlusDelayMs).
			Int("frames", align.FramesForDelay(job.HDR10PlusDelayMs, info.FrameRate)).
			Msg("hdr10plus delay")

		doc, err := plan.MetadataDocument()
		if err != nil {
			return "", fmt.Errorf("build hdr10plus edit document: %w", err)
		}
		docPath := filepath.Join(st.workDir, "hdr10plus_edits.json")
		if err := os.WriteFile(docPath, doc, 0o644); err != nil {
			return "", fmt.Errorf("write hdr10plus edit document: %w", err)
		}
		st.add(docPath, stageHDR10PlusEdit, false)

		editedPath := filepath.Join(st.workDir, "hdr10plus_edited.json")
		if err := p.runner.Run(ctx, p.cfg.Tools.HDR10PlusTool, "editor", metaPath, "-j", docPath, "-o", editedPath); err != nil {
			return "", err
		}
		if !fileNonEmpty(editedPath) {
			return "", fmt.Errorf("%s: %w", editedPath, domain.ErrExtractionFailed)
		}
		st.add(editedPath, stageHDR10PlusEdit, false)
		metaPath = editedPath
	}

	injectedPath := filepath.Join(st.workDir, "hdr10plus_injected.hevc")
	err = p.runWatched(ctx, stageHDR10PlusInject, hdrRaw, injectedPath, logger, func() error {
		return p.runner.Run(ctx, p.cfg.Tools.HDR10PlusTool, "inject", "-i", hdrRaw, "-j", metaPath, "-o", injectedPath)
	})
	if err != nil {
		return "", err
	}
	if !fileNonEmpty(injectedPath) {
		return "", fmt.Errorf("%s: %w", injectedPath, domain.ErrExtractionFailed)
	}
	st.add(injectedPath, stageHDR10PlusInject, false)
	return injectedPath, nil
}

// extractElementary wraps the extractor with artifact bookkeeping. An
// already-elementary input is registered with keep set so cleanup never
// touches a source file.
func (p *Pipeline) extractElementary(ctx context.Context, st *jobState, stage, in string, trackID int, out string, logger zerolog.Logger) (string, error) {
	if extract.IsElementary(in) {
		logger.Info().Str("stage", stage).Str("path", in).Msg("input already elementary, skipping extraction")
		st.add(in, stage, true)
		return in, nil
	}

	var path string
	err := p.runWatched(ctx, stage, in, out, logger, func() error {
		var exErr error
		path, _, exErr = p.extract.Extract(ctx, in, trackID, out)
		return exErr
	})
	if err != nil {
		return "", err
	}
	st.add(path, stage, false)
	return path, nil
}

// runWatched runs one stage with a progress observer polling its output
// file. The observer is stopped as soon as fn returns; it only feeds debug
// telemetry and never touches pipeline state.
func (p *Pipeline) runWatched(ctx context.Context, stage, inPath, outPath string, logger zerolog.Logger, fn func() error) error {
	logger.Info().Str("stage", stage).Msg("stage started")

	obs := progress.New(inPath, outPath, func(percent int) {
		logger.Debug().Str("stage", stage).Int("percent", percent).Msg("stage progress")
	})
	obs.Start()
	err := fn()
	obs.Stop()

	if err != nil {
		logger.Error().Err(err).Str("stage", stage).Msg("stage failed")
		return err
	}
	logger.Info().Str("stage", stage).Msg("stage completed")
	return nil
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
