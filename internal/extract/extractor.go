// Package extract pulls raw elementary video streams out of containers,
// dispatching to the right external tool per container family.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dovimux/internal/domain"
)

var (
	rawExts = map[string]bool{".hevc": true, ".h265": true}
	mp4Exts = map[string]bool{".mp4": true, ".m4v": true, ".mov": true}
)

// IsElementary reports whether path already names a raw elementary stream.
func IsElementary(path string) bool {
	return rawExts[strings.ToLower(filepath.Ext(path))]
}

// Extractor produces elementary streams using MP4Box for MP4-family
// containers and mkvextract for everything else.
type Extractor struct {
	mp4box     string
	mkvextract string
	runner     domain.ToolRunner
}

// New returns an Extractor using the given tool binaries.
func New(mp4box, mkvextract string, runner domain.ToolRunner) *Extractor {
	return &Extractor{mp4box: mp4box, mkvextract: mkvextract, runner: runner}
}

// Extract writes the elementary stream of in to out and returns the
// resulting path. When in is already elementary it is returned unchanged
// with extracted=false so the caller never schedules it for deletion.
// A missing or empty output after the tool returns is a hard failure.
func (e *Extractor) Extract(ctx context.Context, in string, trackID int, out string) (path string, extracted bool, err error) {
	if IsElementary(in) {
		return in, false, nil
	}

	ext := strings.ToLower(filepath.Ext(in))
	if mp4Exts[ext] {
		err = e.runner.Run(ctx, e.mp4box, "-raw", strconv.Itoa(trackID), "-out", out, in)
	} else {
		// Matroska-family: the video track sits in slot 0.
		err = e.runner.Run(ctx, e.mkvextract, in, "tracks", "0:"+out)
	}
	if err != nil {
		return "", false, fmt.Errorf("extract %s: %w", in, err)
	}

	if !fileNonEmpty(out) {
		return "", false, fmt.Errorf("%s: %w", out, domain.ErrExtractionFailed)
	}
	return out, true, nil
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
