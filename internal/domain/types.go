package domain

import "context"

// TrackInfo is a read-only snapshot of the selected video track of a
// container, as reported by the media prober. Zero Width/Height/FrameRate
// mean the prober could not determine the value.
type TrackInfo struct {
	Width     int
	Height    int
	FrameRate float64
	TrackID   int
	Format    string
	Language  string
}

// Job describes one mux invocation. DVPath and HDRPath may point at the
// same container when a single file carries both gradings.
type Job struct {
	ID string

	HDRPath       string
	DVPath        string
	HDR10PlusPath string
	OutputPath    string

	// Signed delays in milliseconds, relative to the HDR track.
	DVDelayMs        float64
	HDR10PlusDelayMs float64

	KeepTemp bool
}

// Artifact is an intermediate file produced by a pipeline stage. Artifacts
// without Keep set are deleted when the job reaches a terminal state.
type Artifact struct {
	Path  string
	Stage string
	Keep  bool
}

// Describer reads the video track descriptor of a container.
type Describer interface {
	Describe(ctx context.Context, path string) (TrackInfo, error)
}

// ToolRunner executes an external tool with a structured argument vector.
// Output captures stdout; Run discards it.
type ToolRunner interface {
	Run(ctx context.Context, bin string, args ...string) error
	Output(ctx context.Context, bin string, args ...string) ([]byte, error)
}
