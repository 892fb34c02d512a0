// Package edit assembles the edit-descriptor documents consumed by the
// external RPU and HDR10+ metadata editors.
package edit

import (
	"encoding/json"

	"dovimux/internal/align"
)

// Plan is the combined geometry and temporal edit for one metadata stream.
type Plan struct {
	// Crop selects trimming (true) vs letterbox padding (false) of the
	// active area. Meaningless when CropAmount is zero.
	Crop       bool
	CropAmount int

	// RemoveRange and DuplicateLength are mutually exclusive; both derive
	// from the same signed delay.
	RemoveRange     string
	DuplicateLength int
}

// FromPlans merges a geometry plan and a delay plan into an edit plan.
func FromPlans(geo align.GeometryPlan, delay align.DelayPlan) Plan {
	return Plan{
		Crop:            geo.Direction == align.DirectionCrop,
		CropAmount:      geo.Amount,
		RemoveRange:     delay.RemoveRange,
		DuplicateLength: delay.DuplicateCount,
	}
}

// Needed reports whether an editor pass is required at all. When false the
// unedited metadata file is used directly and no document is written.
func (p Plan) Needed() bool {
	return p.CropAmount > 0 || p.RemoveRange != "" || p.DuplicateLength > 0
}

type areaPreset struct {
	ID     int `json:"id"`
	Left   int `json:"left"`
	Right  int `json:"right"`
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

type activeArea struct {
	Crop    bool         `json:"crop"`
	Presets []areaPreset `json:"presets"`
}

type duplicateEntry struct {
	Source int `json:"source"`
	Offset int `json:"offset"`
	Length int `json:"length"`
}

type rpuDocument struct {
	ActiveArea activeArea       `json:"active_area"`
	Remove     []string         `json:"remove"`
	Duplicate  []duplicateEntry `json:"duplicate"`
}

type metadataDocument struct {
	Remove    []string         `json:"remove"`
	Duplicate []duplicateEntry `json:"duplicate"`
}

// RPUDocument renders the dovi_tool editor JSON, including the active-area
// geometry presets.
func (p Plan) RPUDocument() ([]byte, error) {
	doc := rpuDocument{
		ActiveArea: activeArea{
			Crop: p.Crop,
			Presets: []areaPreset{{
				ID:     0,
				Left:   0,
				Right:  0,
				Top:    p.CropAmount,
				Bottom: p.CropAmount,
			}},
		},
		Remove:    []string{p.RemoveRange},
		Duplicate: []duplicateEntry{{Source: 0, Offset: 0, Length: p.DuplicateLength}},
	}
	return json.MarshalIndent(doc, "", "    ")
}

// MetadataDocument renders the hdr10plus_tool editor JSON. HDR10+ metadata
// carries no active-area block, so only the temporal edits appear.
func (p Plan) MetadataDocument() ([]byte, error) {
	doc := metadataDocument{
		Remove:    []string{p.RemoveRange},
		Duplicate: []duplicateEntry{{Source: 0, Offset: 0, Length: p.DuplicateLength}},
	}
	return json.MarshalIndent(doc, "", "    ")
}
