package domain

import "errors"

// Error taxonomy shared across the pipeline. All failures surfaced to the
// caller wrap exactly one of these sentinels, so callers can branch with
// errors.Is without parsing messages.
var (
	// ErrInputNotFound marks a job input path that does not exist.
	ErrInputNotFound = errors.New("input not found")

	// ErrNoVideoTrack marks a container whose probe report has no video
	// track, or could not be parsed at all.
	ErrNoVideoTrack = errors.New("no video track")

	// ErrFrameRateMismatch marks HDR and DV tracks whose frame rates
	// differ beyond tolerance; the metadata cannot be aligned.
	ErrFrameRateMismatch = errors.New("frame rate mismatch")

	// ErrExtractionFailed marks an extraction stage whose output file is
	// missing or empty even though the tool returned success.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrExternalTool marks a non-zero exit or spawn failure of an
	// external tool.
	ErrExternalTool = errors.New("external tool failed")
)
