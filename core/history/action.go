// Package history implements the linear, truncate-on-branch undo/redo
// log over reversible region and track edits.
package history

import "Resona/model"

// Kind names an action variant. The set is closed: every kind has a
// concrete payload type in this package.
type Kind string

const (
	KindRegionDelete    Kind = "region-delete"
	KindRegionPaste     Kind = "region-paste"
	KindRegionCropStart Kind = "region-crop-start"
	KindRegionCropEnd   Kind = "region-crop-end"
	KindRegionShift     Kind = "region-shift"
	KindRegionSplit     Kind = "region-split"
	KindTrackDelete     Kind = "track-delete"
)

// ApplyResult tells the caller whether an action transform actually
// touched an entity. A missing entity (removed by a concurrent merge)
// makes the transform a no-op rather than a failure; callers that care
// can observe EntityMissing.
type ApplyResult int

const (
	// Applied means the transform was performed.
	Applied ApplyResult = iota
	// EntityMissing means a referenced entity no longer exists in the
	// graph and the transform was skipped.
	EntityMissing
	// NoHistory means there was nothing to undo or redo.
	NoHistory
)

// String returns a human-readable representation of the result.
func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case EntityMissing:
		return "entity-missing"
	case NoHistory:
		return "no-history"
	default:
		return "unknown"
	}
}

// Action is one reversible edit. Payloads carry both the old and the
// new values, so apply and invert are pure field assignments in either
// direction, never recomputations.
//
// The unexported methods close the set to the variants defined here.
type Action interface {
	Kind() Kind
	// Touched lists the entities the transforms assign to, so callers
	// know what to persist after an undo or redo.
	Touched() (regionIDs, trackIDs []string)
	apply(g *model.Graph) ApplyResult
	invert(g *model.Graph) ApplyResult
}

// RegionDelete soft-deletes a region.
type RegionDelete struct {
	RegionID string `json:"regionId"`
}

func (a RegionDelete) Kind() Kind { return KindRegionDelete }

func (a RegionDelete) Touched() ([]string, []string) { return []string{a.RegionID}, nil }

func (a RegionDelete) apply(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Deleted = true
	return Applied
}

func (a RegionDelete) invert(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Deleted = false
	return Applied
}

// RegionPaste records the creation of a region. The region itself is
// created by the edit surface before Perform; undo "un-creates" it by
// setting the deleted flag.
type RegionPaste struct {
	RegionID string `json:"regionId"`
}

func (a RegionPaste) Kind() Kind { return KindRegionPaste }

func (a RegionPaste) Touched() ([]string, []string) { return []string{a.RegionID}, nil }

func (a RegionPaste) apply(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Deleted = false
	return Applied
}

func (a RegionPaste) invert(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Deleted = true
	return Applied
}

// RegionCropStart trims or extends a region's left edge.
type RegionCropStart struct {
	RegionID       string  `json:"regionId"`
	OldStart       float64 `json:"oldStart"`
	NewStart       float64 `json:"newStart"`
	OldOffsetStart float64 `json:"oldOffsetStart"`
	NewOffsetStart float64 `json:"newOffsetStart"`
}

func (a RegionCropStart) Kind() Kind { return KindRegionCropStart }

func (a RegionCropStart) Touched() ([]string, []string) { return []string{a.RegionID}, nil }

func (a RegionCropStart) apply(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	// Values were validated when the edit was first made.
	r.Start = a.NewStart
	r.OffsetStart = a.NewOffsetStart
	return Applied
}

func (a RegionCropStart) invert(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Start = a.OldStart
	r.OffsetStart = a.OldOffsetStart
	return Applied
}

// RegionCropEnd trims or extends a region's right edge.
type RegionCropEnd struct {
	RegionID     string  `json:"regionId"`
	OldEnd       float64 `json:"oldEnd"`
	NewEnd       float64 `json:"newEnd"`
	OldOffsetEnd float64 `json:"oldOffsetEnd"`
	NewOffsetEnd float64 `json:"newOffsetEnd"`
}

func (a RegionCropEnd) Kind() Kind { return KindRegionCropEnd }

func (a RegionCropEnd) Touched() ([]string, []string) { return []string{a.RegionID}, nil }

func (a RegionCropEnd) apply(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.End = a.NewEnd
	r.OffsetEnd = a.NewOffsetEnd
	return Applied
}

func (a RegionCropEnd) invert(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.End = a.OldEnd
	r.OffsetEnd = a.OldOffsetEnd
	return Applied
}

// RegionShift moves a region along the timeline without changing its
// length or trim offsets.
type RegionShift struct {
	RegionID string  `json:"regionId"`
	OldStart float64 `json:"oldStart"`
	OldEnd   float64 `json:"oldEnd"`
	NewStart float64 `json:"newStart"`
	NewEnd   float64 `json:"newEnd"`
}

func (a RegionShift) Kind() Kind { return KindRegionShift }

func (a RegionShift) Touched() ([]string, []string) { return []string{a.RegionID}, nil }

func (a RegionShift) apply(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Start = a.NewStart
	r.End = a.NewEnd
	return Applied
}

func (a RegionShift) invert(g *model.Graph) ApplyResult {
	r, ok := g.Region(a.RegionID)
	if !ok {
		return EntityMissing
	}
	r.Start = a.OldStart
	r.End = a.OldEnd
	return Applied
}

// RegionSplit cuts a region in two: the source keeps the left part, a
// sibling region (created by the edit surface) carries the right part.
type RegionSplit struct {
	SourceID  string  `json:"sourceId"`
	SiblingID string  `json:"siblingId"`
	OldEnd    float64 `json:"oldEnd"` // Source end before the split
	NewEnd    float64 `json:"newEnd"` // Source end after the split (the cut point)
}

func (a RegionSplit) Kind() Kind { return KindRegionSplit }

func (a RegionSplit) Touched() ([]string, []string) {
	return []string{a.SourceID, a.SiblingID}, nil
}

func (a RegionSplit) apply(g *model.Graph) ApplyResult {
	src, okSrc := g.Region(a.SourceID)
	sib, okSib := g.Region(a.SiblingID)
	if !okSrc || !okSib {
		return EntityMissing
	}
	src.End = a.NewEnd
	sib.Deleted = false
	return Applied
}

func (a RegionSplit) invert(g *model.Graph) ApplyResult {
	src, okSrc := g.Region(a.SourceID)
	sib, okSib := g.Region(a.SiblingID)
	if !okSrc || !okSib {
		return EntityMissing
	}
	sib.Deleted = true
	src.End = a.OldEnd
	return Applied
}

// TrackDelete soft-deletes one or more tracks together with the regions
// that were live at delete time. Regions already deleted beforehand are
// not listed, so undo does not resurrect them.
type TrackDelete struct {
	TrackIDs  []string `json:"trackIds"`
	RegionIDs []string `json:"regionIds"`
}

func (a TrackDelete) Kind() Kind { return KindTrackDelete }

func (a TrackDelete) Touched() ([]string, []string) { return a.RegionIDs, a.TrackIDs }

func (a TrackDelete) apply(g *model.Graph) ApplyResult {
	return a.setDeleted(g, true)
}

func (a TrackDelete) invert(g *model.Graph) ApplyResult {
	return a.setDeleted(g, false)
}

func (a TrackDelete) setDeleted(g *model.Graph, deleted bool) ApplyResult {
	touched := false
	for _, id := range a.TrackIDs {
		if t, ok := g.Track(id); ok {
			t.Deleted = deleted
			touched = true
		}
	}
	for _, id := range a.RegionIDs {
		if r, ok := g.Region(id); ok {
			r.Deleted = deleted
			touched = true
		}
	}
	if !touched {
		return EntityMissing
	}
	return Applied
}
