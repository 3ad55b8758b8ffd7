package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntervalEpsilon is the tolerance used when comparing interval
// boundaries, absorbing floating-point noise from serialization round
// trips.
const IntervalEpsilon = 1e-6

// ErrInvalidInterval is returned when a region interval would violate
// the start <= end invariant.
var ErrInvalidInterval = errors.New("region interval start exceeds end")

// Region is a time interval on a track referencing a slice of the
// track's audio asset. ConflictsWith is a weak, id-valued reference to
// the sibling region it overlaps with, never an owning pointer: the
// referenced region may be deleted independently.
type Region struct {
	ID            string    `json:"id"`
	TrackID       string    `json:"trackId"`
	ProjectID     string    `json:"projectId"`
	Start         float64   `json:"start"` // Seconds on the project timeline
	End           float64   `json:"end"`
	OffsetStart   float64   `json:"offsetStart"` // Trim offsets into the underlying asset
	OffsetEnd     float64   `json:"offsetEnd"`
	TotalDuration float64   `json:"totalDuration"` // Full asset duration, immutable once set
	CreatedBy     string    `json:"createdBy"`     // Replica that authored this region
	Conflicts     bool      `json:"conflicts"`
	ConflictsWith string    `json:"conflictsWith,omitempty"`
	Deleted       bool      `json:"deleted"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewRegion creates a region spanning [start, end] authored by the given
// replica. The interval invariant is enforced here; TotalDuration is
// fixed for the lifetime of the region.
func NewRegion(trackID, projectID, createdBy string, start, end, totalDuration float64) (*Region, error) {
	if start > end {
		return nil, fmt.Errorf("new region on track %s: %w", trackID, ErrInvalidInterval)
	}
	now := time.Now()
	return &Region{
		ID:            uuid.NewString(),
		TrackID:       trackID,
		ProjectID:     projectID,
		Start:         start,
		End:           end,
		OffsetEnd:     totalDuration,
		TotalDuration: totalDuration,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SetInterval mutates the region's timeline interval, rejecting any
// state where start would exceed end.
func (r *Region) SetInterval(start, end float64) error {
	if start > end {
		return fmt.Errorf("region %s: %w", r.ID, ErrInvalidInterval)
	}
	r.Start = start
	r.End = end
	r.UpdatedAt = time.Now()
	return nil
}

// Overlaps reports whether the two regions' intervals overlap by more
// than IntervalEpsilon. Boundary contact within epsilon does not count
// as overlap.
func (r *Region) Overlaps(other *Region) bool {
	return r.Start < other.End-IntervalEpsilon && other.Start < r.End-IntervalEpsilon
}

// MarkConflict flags the region as the losing side of an overlap with
// the given sibling.
func (r *Region) MarkConflict(withID string) {
	r.Conflicts = true
	r.ConflictsWith = withID
	r.UpdatedAt = time.Now()
}

// ClearConflict removes the conflict marker. Only explicit user
// resolution calls this; the detector never clears flags.
func (r *Region) ClearConflict() {
	r.Conflicts = false
	r.ConflictsWith = ""
	r.UpdatedAt = time.Now()
}
