package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Batch pairing matches an HDR file name like "Movie.2024.HDR.x265.mkv" to
// the DV file whose name contains the prefix before the HDR marker. When
// several DV files match, the first one in directory order wins.
var hdrMarker = regexp.MustCompile(`(.*)\.(HDR).*`)

// releaseGroup tags batch output names.
const releaseGroup = "NOGRP"

// Pair is one HDR/DV input pairing discovered in batch mode.
type Pair struct {
	HDR  string
	DV   string
	Base string
}

// OutputName returns the batch output file name for the pair.
func (p Pair) OutputName() string {
	return p.Base + ".DV.HDR.H.265-" + releaseGroup + ".mkv"
}

// PairInputs walks two directories and pairs each HDR file with a DV file
// by the filename prefix before the HDR marker. HDR files without the
// marker are skipped; an HDR file with no DV counterpart fails the batch.
func PairInputs(hdrDir, dvDir string) ([]Pair, error) {
	hdrEntries, err := os.ReadDir(hdrDir)
	if err != nil {
		return nil, fmt.Errorf("read hdr dir: %w", err)
	}
	dvEntries, err := os.ReadDir(dvDir)
	if err != nil {
		return nil, fmt.Errorf("read dv dir: %w", err)
	}

	var dvNames []string
	for _, e := range dvEntries {
		if !e.IsDir() {
			dvNames = append(dvNames, e.Name())
		}
	}

	var pairs []Pair
	for _, e := range hdrEntries {
		if e.IsDir() {
			continue
		}
		m := hdrMarker.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		base := m[1]

		var dvName string
		for _, name := range dvNames {
			if strings.Contains(name, base) {
				dvName = name
				break
			}
		}
		if dvName == "" {
			return nil, fmt.Errorf("no dv file matching %q in %s", base, dvDir)
		}

		pairs = append(pairs, Pair{
			HDR:  filepath.Join(hdrDir, e.Name()),
			DV:   filepath.Join(dvDir, dvName),
			Base: base,
		})
	}
	return pairs, nil
}
