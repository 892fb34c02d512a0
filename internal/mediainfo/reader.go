// Package mediainfo reads normalized video track descriptors by invoking
// the MediaInfo CLI with JSON output.
package mediainfo

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dovimux/internal/domain"
)

// Reader probes containers through an external MediaInfo binary.
type Reader struct {
	binary string
	runner domain.ToolRunner
}

// NewReader returns a Reader shelling out to the given binary.
func NewReader(binary string, runner domain.ToolRunner) *Reader {
	return &Reader{binary: binary, runner: runner}
}

// Describe probes path and returns the first video track. It returns
// domain.ErrNoVideoTrack when the report has no video track or cannot be
// parsed at all; callers abort the job on that, they never crash.
func (r *Reader) Describe(ctx context.Context, path string) (domain.TrackInfo, error) {
	out, err := r.runner.Output(ctx, r.binary, "--Output=JSON", "-f", path)
	if err != nil {
		return domain.TrackInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}
	info, err := parseReport(out)
	if err != nil {
		return domain.TrackInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

type report struct {
	Media struct {
		Tracks []track `json:"track"`
	} `json:"media"`
}

type track struct {
	Type                 string `json:"@type"`
	ID                   string `json:"ID"`
	Width                string `json:"Width"`
	Height               string `json:"Height"`
	Format               string `json:"Format"`
	Language             string `json:"Language"`
	FrameRate            string `json:"FrameRate"`
	FrameRateNum         string `json:"FrameRate_Num"`
	FrameRateDen         string `json:"FrameRate_Den"`
	FrameRateOriginal    string `json:"FrameRate_Original"`
	FrameRateOriginalNum string `json:"FrameRate_Original_Num"`
	FrameRateOriginalDen string `json:"FrameRate_Original_Den"`
}

func parseReport(data []byte) (domain.TrackInfo, error) {
	var doc report
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.TrackInfo{}, domain.ErrNoVideoTrack
	}

	for _, t := range doc.Media.Tracks {
		if t.Type != "Video" {
			continue
		}
		info := domain.TrackInfo{
			Width:     parseDigits(t.Width),
			Height:    parseDigits(t.Height),
			FrameRate: parseFrameRate(t),
			TrackID:   parseDigits(t.ID),
			Format:    strings.ToLower(t.Format),
			Language:  t.Language,
		}
		if info.Language == "" {
			info.Language = "und"
		}
		return info, nil
	}
	return domain.TrackInfo{}, domain.ErrNoVideoTrack
}

var (
	nonDigits    = regexp.MustCompile(`[^0-9]`)
	nonRateChars = regexp.MustCompile(`[^0-9./]`)
)

// parseDigits strips every non-digit before parsing, tolerating locale
// formatting like "1 920" or "1,920".
func parseDigits(value string) int {
	n, err := strconv.Atoi(nonDigits.ReplaceAllString(value, ""))
	if err != nil {
		return 0
	}
	return n
}

// parseFrameRate resolves the rate preferring exact original num/den, then
// plain num/den, then a textual rate parsed as "num/den" or a decimal.
func parseFrameRate(t track) float64 {
	num := firstNonEmpty(t.FrameRateOriginalNum, t.FrameRateNum)
	den := firstNonEmpty(t.FrameRateOriginalDen, t.FrameRateDen)
	if num != "" && den != "" {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN == nil && errD == nil && d != 0 {
			return n / d
		}
	}

	raw := firstNonEmpty(t.FrameRateOriginal, t.FrameRate)
	if raw == "" {
		return 0
	}
	cleaned := nonRateChars.ReplaceAllString(raw, "")
	if num, den, ok := strings.Cut(cleaned, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 0
		}
		return n / d
	}
	fps, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return fps
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
