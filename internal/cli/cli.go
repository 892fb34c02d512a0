// Package cli wires flags, prompts and batch discovery to the pipeline.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"dovimux/internal/config"
	"dovimux/internal/domain"
	"dovimux/internal/log"
	"dovimux/internal/mediainfo"
	"dovimux/internal/pipeline"
	"dovimux/internal/tools"
)

// defaultBatchDir receives batch outputs when no output directory is given.
const defaultBatchDir = "DV.HDR"

// Options is the resolved flag surface of the root command.
type Options struct {
	HDRPath       string
	DVPath        string
	HDR10PlusPath string
	OutputPath    string

	DVDelayMs        float64
	HDR10PlusDelayMs float64

	KeepTemp   bool
	ConfigPath string
	LogLevel   string
}

// Run executes the tool. Directory HDR and DV inputs select batch mode;
// anything else is a single job, with interactive prompts for missing
// required paths.
func Run(ctx context.Context, opts Options, stdin io.Reader, stdout io.Writer) error {
	log.Configure(log.Config{Level: opts.LogLevel})

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	runner := tools.NewRunner()
	reader := mediainfo.NewReader(cfg.Tools.MediaInfo, runner)
	pipe := pipeline.New(cfg, runner, reader)

	if isDir(opts.HDRPath) && isDir(opts.DVPath) {
		return runBatch(ctx, pipe, opts)
	}
	return runSingle(ctx, pipe, opts, stdin, stdout)
}

func runSingle(ctx context.Context, pipe *pipeline.Pipeline, opts Options, stdin io.Reader, stdout io.Writer) error {
	prompts := bufio.NewScanner(stdin)

	hdrPath := opts.HDRPath
	if hdrPath == "" {
		hdrPath = prompt(prompts, stdout, "Enter HDR file path: ")
	}
	dvPath := opts.DVPath
	if dvPath == "" {
		dvPath = prompt(prompts, stdout, "Enter DV file path: ")
	}
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = prompt(prompts, stdout, "Enter output file path: ")
	}
	if hdrPath == "" || dvPath == "" || outputPath == "" {
		return fmt.Errorf("hdr, dv and output paths are required")
	}

	job := domain.Job{
		ID:               uuid.NewString(),
		HDRPath:          hdrPath,
		DVPath:           dvPath,
		HDR10PlusPath:    opts.HDR10PlusPath,
		OutputPath:       NormalizeOutput(outputPath),
		DVDelayMs:        opts.DVDelayMs,
		HDR10PlusDelayMs: opts.HDR10PlusDelayMs,
		KeepTemp:         opts.KeepTemp,
	}
	return pipe.Run(ctx, job)
}

func runBatch(ctx context.Context, pipe *pipeline.Pipeline, opts Options) error {
	logger := log.WithComponent("batch")

	pairs, err := pipeline.PairInputs(opts.HDRPath, opts.DVPath)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no pairable files in %s", opts.HDRPath)
	}

	outputDir := opts.OutputPath
	if outputDir == "" {
		outputDir = defaultBatchDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// Jobs run strictly sequentially; a failed pair does not stop the rest.
	failed := 0
	for _, pair := range pairs {
		job := domain.Job{
			ID:               uuid.NewString(),
			HDRPath:          pair.HDR,
			DVPath:           pair.DV,
			HDR10PlusPath:    opts.HDR10PlusPath,
			OutputPath:       filepath.Join(outputDir, pair.OutputName()),
			DVDelayMs:        opts.DVDelayMs,
			HDR10PlusDelayMs: opts.HDR10PlusDelayMs,
			KeepTemp:         opts.KeepTemp,
		}
		if err := pipe.Run(ctx, job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Str("hdr", pair.HDR).Str("dv", pair.DV).Msg("job failed")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(pairs))
	}
	return nil
}

// NormalizeOutput appends the container suffix when the output name lacks it.
func NormalizeOutput(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".mkv") {
		return path
	}
	return path + ".mkv"
}

func prompt(scanner *bufio.Scanner, stdout io.Writer, label string) string {
	fmt.Fprint(stdout, label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
