package model

import "time"

// TrackKind identifies what kind of material a track carries.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindMidi  TrackKind = "midi"
)

// Track represents one lane of the project timeline. A track exclusively
// owns its regions for lifecycle purposes: soft-deleting a track
// soft-deletes every live region on it.
type Track struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Kind      TrackKind `json:"kind"`
	Volume    float64   `json:"volume"`
	Pan       float64   `json:"pan"`
	FilePath  string    `json:"-"` // Local path of the source audio asset, not exposed in API directly
	Uploaded  bool      `json:"uploaded"`
	Deleted   bool      `json:"deleted"`
	Regions   []*Region `json:"regions"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LiveRegions returns the track's regions that are not soft-deleted.
func (t *Track) LiveRegions() []*Region {
	live := make([]*Region, 0, len(t.Regions))
	for _, r := range t.Regions {
		if !r.Deleted {
			live = append(live, r)
		}
	}
	return live
}

// FindRegion returns the region with the given id, or nil if the track
// does not own it.
func (t *Track) FindRegion(id string) *Region {
	for _, r := range t.Regions {
		if r.ID == id {
			return r
		}
	}
	return nil
}
