package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"dovimux/internal/domain"
)

// jobState tracks the per-job working directory and the artifacts produced
// so far. It is owned by exactly one Run call; no locking needed.
type jobState struct {
	workDir   string
	keepTemp  bool
	logger    zerolog.Logger
	artifacts []domain.Artifact
}

func newJobState(workDir string, keepTemp bool, logger zerolog.Logger) *jobState {
	return &jobState{workDir: workDir, keepTemp: keepTemp, logger: logger}
}

func (s *jobState) add(path, stage string, keep bool) {
	s.artifacts = append(s.artifacts, domain.Artifact{Path: path, Stage: stage, Keep: keep})
}

// cleanup removes the working directory wholesale, plus any non-keep
// artifact registered outside it. Removing the whole tree also catches
// partial files a tool left behind when it died mid-write, before the stage
// could register them. Deletion is best-effort: a file that is already gone
// or cannot be removed is logged at debug and skipped, never escalated.
func (s *jobState) cleanup() {
	if s.keepTemp {
		s.logger.Info().Str("dir", s.workDir).Msg("keeping temporary files")
		return
	}

	prefix := s.workDir + string(os.PathSeparator)
	for _, a := range s.artifacts {
		if a.Keep || strings.HasPrefix(a.Path, prefix) {
			continue
		}
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Str("path", a.Path).Str("stage", a.Stage).Msg("cleanup skipped")
		}
	}
	if err := os.RemoveAll(s.workDir); err != nil {
		s.logger.Debug().Err(err).Str("dir", s.workDir).Msg("work dir not removed")
	}
}

// makeWorkDir creates base as the job working directory, appending an
// incrementing counter when the name is already taken.
func makeWorkDir(base string) (string, error) {
	path := base
	for counter := 1; ; counter++ {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		path = fmt.Sprintf("%s.%d", base, counter)
	}
}
