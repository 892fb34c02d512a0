package align

// Direction tags which side of a height mismatch a plan applies to.
type Direction int

const (
	// DirectionNone means the heights already match.
	DirectionNone Direction = iota

	// DirectionCrop means the graded track is shorter than the reference:
	// the reference active area must be trimmed top and bottom.
	DirectionCrop

	// DirectionLetterbox means the graded track is taller: its active area
	// must be padded top and bottom.
	DirectionLetterbox
)

func (d Direction) String() string {
	switch d {
	case DirectionCrop:
		return "crop"
	case DirectionLetterbox:
		return "letterbox"
	default:
		return "none"
	}
}

// GeometryPlan is the symmetric top+bottom adjustment reconciling two
// active picture heights. Only vertical adjustment is supported.
type GeometryPlan struct {
	Amount    int
	Direction Direction
}

// ReconcileHeights compares the reference height with the graded track
// height and returns the adjustment. An odd difference loses one pixel to
// integer division; that rounding is accepted.
func ReconcileHeights(refHeight, gradedHeight int) GeometryPlan {
	switch {
	case refHeight == gradedHeight:
		return GeometryPlan{}
	case refHeight > gradedHeight:
		return GeometryPlan{Amount: (refHeight - gradedHeight) / 2, Direction: DirectionCrop}
	default:
		return GeometryPlan{Amount: (gradedHeight - refHeight) / 2, Direction: DirectionLetterbox}
	}
}
